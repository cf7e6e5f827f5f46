package client

import (
	"context"
	"math"
	"time"
)

// RetryPolicy bounds the retries of one invocation.
type RetryPolicy struct {
	MaxRetries int // 0 disables retries
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// normalized fills invalid fields with defaults.
func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Delay returns the wait before retry attempt n (1-based). jitter01 is a
// random sample in [0,1) and is ignored when the policy has no jitter.
func (p RetryPolicy) Delay(attempt int, jitter01 float64) time.Duration {
	if !p.Jitter {
		jitter01 = 1
	}
	return Backoff(attempt, p.BaseDelay, p.MaxDelay, p.Multiplier, jitter01)
}

// Backoff computes base*multiplier^(attempt-1) capped at max, then scales it
// into [d/2, d] by jitter01. It is pure so that schedules are testable.
func Backoff(attempt int, base, max time.Duration, multiplier, jitter01 float64) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	d := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if max > 0 && d > float64(max) {
		d = float64(max)
	}
	if jitter01 < 0 {
		jitter01 = 0
	} else if jitter01 > 1 {
		jitter01 = 1
	}
	return time.Duration(d/2 + d/2*jitter01)
}

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
