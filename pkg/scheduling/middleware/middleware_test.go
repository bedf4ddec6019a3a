package middleware

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/vnykmshr/taskpool/internal/testutil"
	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

var errBoom = errors.New("boom")

func echo(_ context.Context, s string) (string, error) {
	return s, nil
}

func fail(_ context.Context, _ string) (string, error) {
	return "", errBoom
}

func TestChainOrder(t *testing.T) {
	var mu sync.Mutex
	var trace []string
	record := func(name string) Middleware[string, string] {
		return func(next workerpool.Handler[string, string]) workerpool.Handler[string, string] {
			return func(ctx context.Context, s string) (string, error) {
				mu.Lock()
				trace = append(trace, name)
				mu.Unlock()
				return next(ctx, s+name)
			}
		}
	}

	h := Chain(echo, record("a"), nil, record("b"), record("c"))
	v, err := h(context.Background(), ">")
	require.NoError(t, err)

	assert.Equal(t, ">abc", v)
	assert.Equal(t, []string{"a", "b", "c"}, trace)
}

func TestChainEmpty(t *testing.T) {
	v, err := Chain(echo)(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestTimeout(t *testing.T) {
	slow := func(ctx context.Context, s string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(testutil.TestTimeout):
			return s, nil
		}
	}

	_, err := Timeout[string, string](10*time.Millisecond)(slow)(context.Background(), "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, tperrors.ErrTimeout)
	assert.True(t, tperrors.IsRetryable(err))

	// the caller's own deadline is not reported as this middleware's timeout
	parent, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Timeout[string, string](time.Minute)(slow)(parent, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, tperrors.ErrTimeout)

	// a handler that fails for its own reasons keeps its error
	_, err = Timeout[string, string](time.Minute)(fail)(context.Background(), "x")
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, tperrors.ErrTimeout)

	hasDeadline := func(ctx context.Context, _ string) (string, error) {
		_, ok := ctx.Deadline()
		if ok {
			return "deadline", nil
		}
		return "none", nil
	}
	for _, d := range []time.Duration{0, -time.Second} {
		v, err := Timeout[string, string](d)(hasDeadline)(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, "none", v)
	}
}

func TestRateLimit(t *testing.T) {
	t.Run("allows within limit", func(t *testing.T) {
		h := RateLimit[string, string](rate.NewLimiter(rate.Inf, 1))(echo)
		for i := 0; i < 10; i++ {
			_, err := h(context.Background(), "x")
			require.NoError(t, err)
		}
	})

	t.Run("fails when wait cannot succeed", func(t *testing.T) {
		called := false
		h := RateLimit[string, string](rate.NewLimiter(1, 0))(func(ctx context.Context, s string) (string, error) {
			called = true
			return s, nil
		})
		_, err := h(context.Background(), "x")
		assert.ErrorIs(t, err, tperrors.ErrRateLimited)
		assert.True(t, tperrors.IsRetryable(err))
		assert.False(t, called)
	})

	t.Run("honors cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := RateLimit[string, string](rate.NewLimiter(1, 1))(echo)(ctx, "x")
		assert.ErrorIs(t, err, tperrors.ErrRateLimited)
	})

	t.Run("nil limiter is a no-op", func(t *testing.T) {
		v, err := RateLimit[string, string](nil)(echo)(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, "x", v)
	})
}

func TestCircuitBreaker(t *testing.T) {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "flaky",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	calls := 0
	h := CircuitBreaker[string, string](cb)(func(ctx context.Context, s string) (string, error) {
		calls++
		return fail(ctx, s)
	})

	for i := 0; i < 2; i++ {
		_, err := h(context.Background(), "x")
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := h(context.Background(), "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Contains(t, err.Error(), `"flaky"`)
	assert.Equal(t, 2, calls, "open breaker must not call the handler")
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	_, err := Logging[string, string](logger)(echo)(context.Background(), "ok")
	require.NoError(t, err)
	_, err = Logging[string, string](logger)(fail)(context.Background(), "bad")
	require.ErrorIs(t, err, errBoom)

	succeeded := logs.FilterMessage("task succeeded").All()
	require.Len(t, succeeded, 1)
	assert.Equal(t, zapcore.DebugLevel, succeeded[0].Level)
	assert.Equal(t, "ok", succeeded[0].ContextMap()["task"])

	failed := logs.FilterMessage("task failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "boom", failed[0].ContextMap()["error"])
	assert.Equal(t, false, failed[0].ContextMap()["retryable"])

	limited := func(context.Context, string) (string, error) { return "", tperrors.ErrRateLimited }
	_, _ = Logging[string, string](logger)(limited)(context.Background(), "later")
	failed = logs.FilterMessage("task failed").All()
	require.Len(t, failed, 2)
	assert.Equal(t, true, failed[1].ContextMap()["retryable"])
}

func TestInstrument(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())

	ok := Instrument[string, string](reg, "echo")(echo)
	bad := Instrument[string, string](reg, "fail")(fail)
	timedOut := Instrument[string, string](reg, "slow")(func(ctx context.Context, _ string) (string, error) {
		return "", context.DeadlineExceeded
	})

	for i := 0; i < 3; i++ {
		_, _ = ok(context.Background(), "x")
	}
	_, _ = bad(context.Background(), "x")
	_, _ = timedOut(context.Background(), "x")

	assert.Equal(t, 3.0, promtest.ToFloat64(reg.HandlerCalls.WithLabelValues("echo", OutcomeSuccess)))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.HandlerCalls.WithLabelValues("fail", OutcomeError)))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.HandlerCalls.WithLabelValues("slow", OutcomeTimeout)))
	assert.Equal(t, 3, promtest.CollectAndCount(reg.HandlerDuration))

	// nil registry leaves the handler untouched
	v, err := Instrument[string, string](nil, "x")(echo)(context.Background(), "y")
	require.NoError(t, err)
	assert.Equal(t, "y", v)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeSuccess},
		{errBoom, OutcomeError},
		{context.DeadlineExceeded, OutcomeTimeout},
		{fmt.Errorf("slow: %w", tperrors.ErrTimeout), OutcomeTimeout},
		{context.Canceled, OutcomeCanceled},
		{tperrors.ErrRateLimited, OutcomeRateLimited},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcome(tt.err), "%v", tt.err)
	}
}

func TestChainInPool(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := metrics.NewRegistry(prometheus.NewRegistry())

	h := Chain(func(_ context.Context, s string) (string, error) {
		if s == "" {
			return "", errBoom
		}
		return strings.ToUpper(s), nil
	},
		Logging[string, string](zap.New(core)),
		Instrument[string, string](reg, "upper"),
		Timeout[string, string](time.Second),
	)

	pool, err := workerpool.New(2, 4, h)
	require.NoError(t, err)
	pool.Start()

	for _, s := range []string{"a", "", "b", "c"} {
		require.NoError(t, pool.Submit(s))
	}
	require.NoError(t, pool.Close())

	var values []string
	var failures int
	for r := range pool.All() {
		if r.Error != nil {
			failures++
			continue
		}
		values = append(values, r.Value)
	}
	sort.Strings(values)

	assert.Equal(t, []string{"A", "B", "C"}, values)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, logs.FilterMessage("task failed").Len())
	assert.Equal(t, 3.0, promtest.ToFloat64(reg.HandlerCalls.WithLabelValues("upper", OutcomeSuccess)))
}
