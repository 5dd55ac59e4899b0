package literature

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/util"
	"github.com/ppiankov/veracity/internal/worker"
)

// searchSleepFunc waits between retries (injectable for tests)
var searchSleepFunc = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const maxResponseBytes = 8 << 20

// fetcher is the shared GET path for all literature services: robots
// policy, per-host pacing and retry with exponential backoff.
type fetcher struct {
	httpClient *http.Client
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
	userAgent  string
	apiKeyHdr  string
	apiKey     string
	maxRetries int
	logger     *slog.Logger

	robotsOnce sync.Map // host -> struct{}
}

// Options configures a literature client
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    *worker.Limiter
	Robots     *util.RobotsChecker
	UserAgent  string
	MaxRetries int
	Logger     *slog.Logger
}

func newFetcher(opts Options, apiKeyHeader string) *fetcher {
	f := &fetcher{
		httpClient: opts.HTTPClient,
		limiter:    opts.Limiter,
		robots:     opts.Robots,
		userAgent:  opts.UserAgent,
		apiKeyHdr:  apiKeyHeader,
		apiKey:     opts.APIKey,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if f.limiter == nil {
		f.limiter = worker.NewLimiter(0, 1)
	}
	if f.maxRetries < 0 {
		f.maxRetries = 0
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// get fetches rawURL, retrying transient failures up to maxRetries times
func (f *fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.checkRobots(ctx, rawURL); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, &SearchError{Reason: model.ReasonNetwork, Err: err}
		}

		body, retryAfter, err := f.once(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == f.maxRetries {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if retryAfter > backoff {
			backoff = retryAfter
		}
		f.logger.Debug("retrying literature request", "attempt", attempt+1, "backoff", backoff, "error", err)

		if err := searchSleepFunc(ctx, backoff); err != nil {
			return nil, &SearchError{Reason: model.ReasonNetwork, Err: err}
		}
	}

	return nil, lastErr
}

func (f *fetcher) once(ctx context.Context, rawURL string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, &SearchError{Reason: model.ReasonNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.apiKeyHdr != "" && f.apiKey != "" {
		req.Header.Set(f.apiKeyHdr, f.apiKey)
	}
	req.Header.Set("Accept", "application/json, application/xml;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, &SearchError{Reason: model.ReasonNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), &SearchError{
			Reason:     model.ReasonRateLimit,
			StatusCode: resp.StatusCode,
			Err:        errors.New("too many requests"),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, &SearchError{
			Reason:     model.ReasonStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, &SearchError{Reason: model.ReasonNetwork, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, 0, nil
}

// checkRobots applies the host's robots.txt once per host
func (f *fetcher) checkRobots(ctx context.Context, rawURL string) error {
	if f.robots == nil {
		return nil
	}

	policy, err := f.robots.Policy(ctx, rawURL)
	if err != nil {
		return &SearchError{Reason: model.ReasonNetwork, Err: err}
	}
	if !policy.Allowed {
		return &SearchError{Reason: model.ReasonStatus, Err: fmt.Errorf("disallowed by robots.txt: %s", rawURL)}
	}

	if parsed, err := url.Parse(rawURL); err == nil {
		if _, seen := f.robotsOnce.LoadOrStore(parsed.Host, struct{}{}); !seen {
			f.limiter.ApplyCrawlDelay(parsed.Host, policy.CrawlDelay)
		}
	}
	return nil
}

// isRetryable reports transport failures, throttling and 5xx responses
func isRetryable(err error) bool {
	var se *SearchError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Reason {
	case model.ReasonNetwork, model.ReasonRateLimit:
		return true
	case model.ReasonStatus:
		return se.StatusCode >= 500
	}
	return false
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
