package client

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/common"
	"github.com/bobmcallan/persona-mcp/internal/metrics"
	"github.com/bobmcallan/persona-mcp/internal/request"
)

// IdempotencyHeader carries the per-invocation token of state-changing calls.
const IdempotencyHeader = "Idempotency-Key"

// Dispatcher executes built requests with retries. It holds no per-request
// state, so concurrent Dispatch calls are independent.
type Dispatcher struct {
	client  *Client
	logger  *common.Logger
	policy  RetryPolicy
	timeout time.Duration
	limiter *rate.Limiter
	metrics *metrics.Collector
	sleep   Sleeper
	jitter  func() float64
	newKey  func() string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p.normalized() }
}

// WithTimeout bounds each invocation, retries included.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithRateLimit waits on a token bucket before every attempt. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		if rps <= 0 {
			d.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records invocations on m.
func WithMetrics(m *metrics.Collector) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithSleeper replaces the back-off suspension point.
func WithSleeper(s Sleeper) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = s }
}

// WithJitterSource replaces the [0,1) jitter sample source.
func WithJitterSource(f func() float64) DispatcherOption {
	return func(d *Dispatcher) { d.jitter = f }
}

// WithIdempotencyKeys replaces the token generator.
func WithIdempotencyKeys(f func() string) DispatcherOption {
	return func(d *Dispatcher) { d.newKey = f }
}

// NewDispatcher creates a dispatcher over c.
func NewDispatcher(c *Client, logger *common.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		client: c,
		logger: logger,
		policy: DefaultRetryPolicy(),
		sleep:  ContextSleep,
		jitter: rand.Float64,
		newKey: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Client returns the underlying uniform client.
func (d *Dispatcher) Client() *Client {
	return d.client
}

// Dispatch executes req. Failures are always *apierr.Error carrying the
// elapsed duration and the number of attempts made.
func (d *Dispatcher) Dispatch(ctx context.Context, req *request.APIRequest) (*APIResponse, error) {
	start := time.Now()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var headers http.Header
	if isStateChanging(req.Method) {
		headers = http.Header{}
		headers.Set(IdempotencyHeader, d.newKey())
	}

	attempts := 0
	var lastErr *apierr.Error
	for attempt := 0; attempt <= d.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := d.policy.Delay(attempt, d.jitter())
			d.metrics.RecordRetry(req.Method)
			d.logger.Debug().
				Str("operation", req.OperationID).
				Int("attempt", attempt).
				Int("max_retries", d.policy.MaxRetries).
				Int64("delay_ms", delay.Milliseconds()).
				Str("kind", string(lastErr.Kind)).
				Msg("retrying api request")
			if err := d.sleep(ctx, delay); err != nil {
				lastErr = contextFailure(ctx, d.timeout, err)
				break
			}
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				lastErr = contextFailure(ctx, d.timeout, err)
				break
			}
		}

		attempts++
		resp, err := d.client.Do(ctx, req.Method, req.Path, req.Query, req.Body, headers)
		if err == nil {
			d.metrics.RecordAPIRequest(req.Method, "ok", time.Since(start))
			if attempt > 0 {
				d.logger.Info().Str("operation", req.OperationID).Int("attempts", attempts).Msg("api request succeeded after retry")
			}
			return resp, nil
		}

		if ctx.Err() != nil {
			lastErr = contextFailure(ctx, d.timeout, err)
			break
		}
		lastErr = apierr.As(err)
		if !lastErr.Kind.Retryable() {
			break
		}
	}

	lastErr.Duration = time.Since(start)
	lastErr.Attempts = attempts
	d.metrics.RecordAPIRequest(req.Method, string(lastErr.Kind), lastErr.Duration)
	d.logger.Warn().
		Str("operation", req.OperationID).
		Str("method", req.Method).
		Str("path", req.Path).
		Str("kind", string(lastErr.Kind)).
		Int("attempts", attempts).
		Int64("duration_ms", lastErr.Duration.Milliseconds()).
		Msg("api request failed")
	return nil, lastErr
}

// contextFailure reports an expired or cancelled invocation as transient.
func contextFailure(ctx context.Context, timeout time.Duration, err error) *apierr.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierr.Wrap(apierr.KindTransient, err, "request timed out after %s", timeout)
	}
	return apierr.Wrap(apierr.KindTransient, err, "request cancelled")
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
