package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	tpcontext "github.com/vnykmshr/taskpool/pkg/common/context"
	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

// Middleware wraps a handler with additional behavior.
type Middleware[T, R any] func(next workerpool.Handler[T, R]) workerpool.Handler[T, R]

// Chain applies mws to h. The first middleware is the outermost one and
// sees each task first.
func Chain[T, R any](h workerpool.Handler[T, R], mws ...Middleware[T, R]) workerpool.Handler[T, R] {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Timeout bounds every invocation of the wrapped handler by d.
// A non-positive d leaves the handler unchanged.
//
// When d expires before the caller's context ends, a failed invocation's
// error also matches errors.ErrTimeout.
func Timeout[T, R any](d time.Duration) Middleware[T, R] {
	return func(next workerpool.Handler[T, R]) workerpool.Handler[T, R] {
		if d <= 0 {
			return next
		}
		return func(parent context.Context, task T) (R, error) {
			ctx, cancel := context.WithTimeout(parent, d)
			defer cancel()
			v, err := next(ctx, task)
			if err != nil && parent.Err() == nil && tpcontext.IsTimedOut(ctx) {
				return v, fmt.Errorf("middleware: %w after %s: %w", tperrors.ErrTimeout, d, err)
			}
			return v, err
		}
	}
}

// RateLimit waits for a token from limiter before each invocation. When
// the wait fails, the task fails with an error matching
// errors.ErrRateLimited and the cause of the failed wait.
func RateLimit[T, R any](limiter *rate.Limiter) Middleware[T, R] {
	return func(next workerpool.Handler[T, R]) workerpool.Handler[T, R] {
		if limiter == nil {
			return next
		}
		return func(ctx context.Context, task T) (R, error) {
			if err := limiter.Wait(ctx); err != nil {
				var zero R
				return zero, fmt.Errorf("middleware: %w: %w", tperrors.ErrRateLimited, err)
			}
			return next(ctx, task)
		}
	}
}

// CircuitBreaker runs the wrapped handler through cb. While the breaker
// is open tasks fail fast with an error matching gobreaker.ErrOpenState
// (or gobreaker.ErrTooManyRequests when half-open).
func CircuitBreaker[T, R any](cb *gobreaker.CircuitBreaker[R]) Middleware[T, R] {
	return func(next workerpool.Handler[T, R]) workerpool.Handler[T, R] {
		if cb == nil {
			return next
		}
		return func(ctx context.Context, task T) (R, error) {
			v, err := cb.Execute(func() (R, error) {
				return next(ctx, task)
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return v, fmt.Errorf("middleware: breaker %q: %w", cb.Name(), err)
			}
			return v, err
		}
	}
}

// Logging logs every invocation: successes at debug, failures at warn.
func Logging[T, R any](logger *zap.Logger) Middleware[T, R] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next workerpool.Handler[T, R]) workerpool.Handler[T, R] {
		return func(ctx context.Context, task T) (R, error) {
			start := time.Now()
			v, err := next(ctx, task)
			if err != nil {
				logger.Warn("task failed",
					zap.Any("task", task),
					zap.Duration("duration", time.Since(start)),
					zap.Bool("retryable", tperrors.IsRetryable(err)),
					zap.Error(err))
				return v, err
			}
			logger.Debug("task succeeded",
				zap.Any("task", task),
				zap.Duration("duration", time.Since(start)))
			return v, nil
		}
	}
}

// Outcome labels used by Instrument.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeCanceled    = "canceled"
	OutcomeRateLimited = "rate_limited"
)

// Instrument records call counts by outcome and durations for the wrapped
// handler under name. A nil registry leaves the handler unchanged.
func Instrument[T, R any](reg *metrics.Registry, name string) Middleware[T, R] {
	return func(next workerpool.Handler[T, R]) workerpool.Handler[T, R] {
		if reg == nil {
			return next
		}
		calls := reg.HandlerCalls.MustCurryWith(map[string]string{"handler_name": name})
		duration := reg.HandlerDuration.WithLabelValues(name)

		return func(ctx context.Context, task T) (R, error) {
			start := time.Now()
			v, err := next(ctx, task)
			duration.Observe(time.Since(start).Seconds())
			calls.WithLabelValues(outcome(err)).Inc()
			return v, err
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, tperrors.ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, tperrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
