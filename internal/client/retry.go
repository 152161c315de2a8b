package client

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryPolicy configures retries of idempotent reads.
type RetryPolicy struct {
	MaxRetries     int           // extra attempts after the first
	InitialBackoff time.Duration // doubles after every failed attempt
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy gives three attempts in total waiting 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
	}
}

// Validate rejects policies that would make no attempt or never wait.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", p.MaxRetries)
	}
	if p.InitialBackoff <= 0 {
		return fmt.Errorf("initial backoff must be positive, got %s", p.InitialBackoff)
	}
	if p.MaxBackoff < 0 {
		return fmt.Errorf("max backoff must not be negative, got %s", p.MaxBackoff)
	}
	return nil
}

// Backoff returns the wait before retry number attempt+1: initial * 2^attempt,
// capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(2, float64(attempt))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// sleep waits d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
