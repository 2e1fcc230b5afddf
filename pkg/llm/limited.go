package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/estimator/internal/resilience"
)

// LimitOptions tunes Limited.
type LimitOptions struct {
	RatePerMinute float64       // <= 0 disables limiting
	MaxAttempts   int           // total attempts per Complete call
	Timeout       time.Duration // per attempt; 0 disables
	Retry         *resilience.RetryConfig
}

// Limited decorates a Completer with an adaptive rate limit, a circuit
// breaker, retries on transient errors and a per-attempt timeout.
type Limited struct {
	next    Completer
	limiter *AdaptiveLimiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewLimited wraps next.
func NewLimited(next Completer, opts LimitOptions) *Limited {
	retry := resilience.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	if opts.MaxAttempts > 0 {
		retry.MaxAttempts = opts.MaxAttempts
	}
	retry.OnRetry = resilience.RetryLogger(next.Name(), "complete")

	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Limit(opts.RatePerMinute / 60)
	}

	cb := resilience.DefaultCircuitBreakerConfig()
	cb.Name = next.Name()

	return &Limited{
		next:    next,
		limiter: NewAdaptiveLimiter(limit, 1),
		breaker: resilience.NewCircuitBreaker(cb),
		retry:   retry,
		timeout: opts.Timeout,
	}
}

// Name implements Completer.
func (l *Limited) Name() string { return l.next.Name() }

// Complete implements Completer.
func (l *Limited) Complete(ctx context.Context, prompt string) (string, error) {
	return resilience.DoVal(ctx, l.retry, func(ctx context.Context) (string, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "llm: rate limit wait")
		}

		out, err := resilience.ExecuteVal(ctx, l.breaker, func(ctx context.Context) (string, error) {
			if l.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, l.timeout)
				defer cancel()
			}
			return l.next.Complete(ctx, prompt)
		})

		var te *resilience.TransientError
		switch {
		case err == nil:
			l.limiter.OnSuccess()
		case errors.As(err, &te) && te.StatusCode == 429:
			l.limiter.OnRateLimit()
		}
		return out, err
	})
}

// AdaptiveLimiter wraps a rate.Limiter that slows down after 429 responses
// and recovers on success. The rate stays between a quarter of and twice the
// initial rate.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter. An infinite rate never
// adapts.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initial, burst),
		initialRate: initial,
		currentRate: initial,
	}
}

// Wait blocks until the limiter allows a call.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%, up to twice the initial rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.set(func(r rate.Limit) rate.Limit { return min(r*1.2, a.initialRate*2) })
}

// OnRateLimit halves the rate, down to a quarter of the initial rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.set(func(r rate.Limit) rate.Limit { return max(r*0.5, a.initialRate/4) })
	zap.L().Warn("llm: reducing request rate after 429",
		zap.Float64("per_minute", float64(a.Limit())*60),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

func (a *AdaptiveLimiter) set(next func(rate.Limit) rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialRate == rate.Inf {
		return
	}
	a.currentRate = next(a.currentRate)
	a.limiter.SetLimit(a.currentRate)
}
