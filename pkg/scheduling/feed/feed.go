package feed

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskpool/pkg/metrics"
)

const module = "feed"

// Submitter accepts tasks. *workerpool.Pool implements it.
type Submitter[T any] interface {
	SubmitWithContext(ctx context.Context, task T) error
}

// Outcome labels recorded in the feed_items_total counter.
const (
	OutcomeSubmitted = "submitted"
	OutcomeRejected  = "rejected"
	OutcomeInvalid   = "invalid"
	OutcomeRequeued  = "requeued"
	OutcomeError     = "error"
)

// DefaultPollTimeout is how long RedisList blocks on an empty list before
// checking its context again.
const DefaultPollTimeout = time.Second

// Config holds options shared by the long-running feeds.
type Config struct {
	// Name labels logs and metrics. Defaults to the feed kind.
	Name string

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics enables the feed_items_total counter when non-nil.
	Metrics *metrics.Registry

	// PollTimeout is the BLPOP timeout used by RedisList. Redis accepts
	// whole seconds only, so values below one second are raised to one.
	PollTimeout time.Duration
}

func (c Config) withDefaults(kind string) Config {
	if c.Name == "" {
		c.Name = kind
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.PollTimeout < time.Second {
		c.PollTimeout = DefaultPollTimeout
	}
	return c
}

// counter is a nil-safe view of feed_items_total for one feed.
type counter struct {
	items *prometheus.CounterVec
}

func newCounter(reg *metrics.Registry, name string) counter {
	if reg == nil {
		return counter{}
	}
	return counter{items: reg.FeedItems.MustCurryWith(prometheus.Labels{"feed_name": name})}
}

func (c counter) inc(outcome string) {
	if c.items == nil {
		return
	}
	c.items.WithLabelValues(outcome).Inc()
}

// FromSlice submits tasks in order and stops at the first error. It
// returns the number of tasks submitted.
func FromSlice[T any](ctx context.Context, sub Submitter[T], tasks []T) (int, error) {
	for i, task := range tasks {
		if err := sub.SubmitWithContext(ctx, task); err != nil {
			return i, err
		}
	}
	return len(tasks), nil
}

// FromChannel submits every value received from ch until ch is closed,
// ctx ends or a submission fails. It returns the number of tasks
// submitted and the error that stopped it, if any.
func FromChannel[T any](ctx context.Context, sub Submitter[T], ch <-chan T) (int, error) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case task, ok := <-ch:
			if !ok {
				return n, nil
			}
			if err := sub.SubmitWithContext(ctx, task); err != nil {
				return n, err
			}
			n++
		}
	}
}
