package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Spacer enforces a minimum gap between consecutive calls.
// The first Wait returns immediately. A nil Spacer never waits.
type Spacer struct {
	limiter *rate.Limiter
}

// NewSpacer returns a spacer for gap. A non-positive gap disables waiting.
func NewSpacer(gap time.Duration) *Spacer {
	if gap <= 0 {
		return nil
	}
	return &Spacer{limiter: rate.NewLimiter(rate.Every(gap), 1)}
}

// Wait blocks until the next call may proceed
func (s *Spacer) Wait(ctx context.Context) error {
	if s == nil {
		return ctx.Err()
	}
	return s.limiter.Wait(ctx)
}
