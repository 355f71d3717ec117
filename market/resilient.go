package market

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"rsi-cycle-tracker/apperr"
)

// RetryPolicy bounds the retries of a single price-source call.
type RetryPolicy struct {
	Attempts    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

// DefaultRetryPolicy is three attempts with 100ms→400ms backoff and a 5s
// per-attempt timeout.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:    3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    time.Second,
	CallTimeout: 5 * time.Second,
}

// ResilientSource decorates a Source with per-call timeouts, bounded
// exponential backoff and a circuit breaker. Exhausted calls surface as
// *apperr.UpstreamError.
type ResilientSource struct {
	next    Source
	policy  RetryPolicy
	breaker *CircuitBreaker
	log     *zap.Logger
}

// NewResilientSource wraps next.
func NewResilientSource(next Source, policy RetryPolicy, breaker *CircuitBreaker, log *zap.Logger) *ResilientSource {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if breaker == nil {
		breaker = NewCircuitBreaker(5, 10*time.Second)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ResilientSource{next: next, policy: policy, breaker: breaker, log: log}
}

// Breaker exposes the circuit breaker for health reporting.
func (r *ResilientSource) Breaker() *CircuitBreaker {
	return r.breaker
}

// Symbols implements Source.
func (r *ResilientSource) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	err := r.do(ctx, "price_source.symbols", func(ctx context.Context) error {
		var err error
		out, err = r.next.Symbols(ctx)
		return err
	})
	return out, err
}

// History implements Source.
func (r *ResilientSource) History(ctx context.Context, symbol string) ([]PriceBar, error) {
	var out []PriceBar
	err := r.do(ctx, "price_source.history", func(ctx context.Context) error {
		var err error
		out, err = r.next.History(ctx, symbol)
		return err
	})
	return out, err
}

// LatestSession implements Source.
func (r *ResilientSource) LatestSession(ctx context.Context) ([]PriceBar, error) {
	var out []PriceBar
	err := r.do(ctx, "price_source.latest_session", func(ctx context.Context) error {
		var err error
		out, err = r.next.LatestSession(ctx)
		return err
	})
	return out, err
}

func (r *ResilientSource) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := r.policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		err := r.breaker.Execute(func() error {
			callCtx, cancel := r.callContext(ctx)
			defer cancel()
			return fn(callCtx)
		}, isPermanent)

		if err == nil || isPermanent(err) {
			return err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
			break
		}
		if attempt == r.policy.Attempts {
			break
		}

		r.log.Warn("⚠️ Price source call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return apperr.Upstream(op, ctx.Err())
		}
		delay *= 2
		if r.policy.MaxDelay > 0 && delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}

	return apperr.Upstream(op, lastErr)
}

func (r *ResilientSource) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.policy.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.policy.CallTimeout)
}

// isPermanent reports errors that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, ErrUnknownSymbol)
}
