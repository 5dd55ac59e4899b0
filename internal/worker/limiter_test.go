package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://api.semanticscholar.org/graph/v1/paper/search"); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	// Different host should also work
	if err := limiter.Wait(ctx, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	limiter := NewLimiter(1, 1)
	ctx := context.Background()
	url := "http://example.com"

	if err := limiter.Wait(ctx, url); err != nil {
		t.Errorf("first wait failed: %v", err)
	}

	// burst 1 is consumed
	if limiter.Allow(url) {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}

	if !limiter.Allow("http://other.com") {
		t.Errorf("expected allow for other host")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 20; i++ {
		if !limiter.Allow("http://example.com") {
			t.Fatalf("request %d refused by unlimited limiter", i)
		}
	}
}

func TestLimiter_SetHostRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	host := "slow.com"

	limiter.SetHostRate(host, 0.1, 1)

	if !limiter.Allow("http://" + host) {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("http://" + host) {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("http://fast.com") {
		t.Errorf("other host should pass")
	}
}

func TestLimiter_ApplyCrawlDelay(t *testing.T) {
	limiter := NewLimiter(10, 10)
	host := "api.example.org"

	limiter.ApplyCrawlDelay(host, 10*time.Second)

	if !limiter.Allow("https://" + host + "/search") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("https://" + host + "/search") {
		t.Errorf("crawl delay should block the second request")
	}

	// A shorter delay must not loosen the existing limit
	limiter.ApplyCrawlDelay(host, time.Millisecond)
	if limiter.Allow("https://" + host + "/search") {
		t.Errorf("shorter crawl delay should not speed the host up")
	}
}

func TestExtractHost(t *testing.T) {
	host, err := extractHost("http://example.com/foo")
	if err != nil {
		t.Fatalf("extractHost failed: %v", err)
	}
	if host != "example.com" {
		t.Errorf("expected example.com, got %s", host)
	}

	_, err = extractHost("::invalid")
	if err == nil {
		t.Errorf("expected error for invalid URL")
	}
}

func TestSpacer(t *testing.T) {
	ctx := context.Background()

	disabled := NewSpacer(0)
	if disabled != nil {
		t.Fatal("expected nil spacer for zero gap")
	}
	if err := disabled.Wait(ctx); err != nil {
		t.Errorf("nil spacer wait failed: %v", err)
	}

	spacer := NewSpacer(50 * time.Millisecond)
	start := time.Now()
	if err := spacer.Wait(ctx); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	if time.Since(start) > 25*time.Millisecond {
		t.Errorf("first wait should not block")
	}

	if err := spacer.Wait(ctx); err != nil {
		t.Fatalf("second wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected gap >= 40ms, got %v", elapsed)
	}
}

func TestSpacer_Cancelled(t *testing.T) {
	spacer := NewSpacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	if err := spacer.Wait(ctx); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}

	cancel()
	if err := spacer.Wait(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}
