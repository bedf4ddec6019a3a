package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
)

// pushBackTimeout bounds the LPUSH that returns a refused item to its list.
// It runs on a fresh context because the feed's own may already be done.
const pushBackTimeout = 5 * time.Second

// Decoder turns one list item into a task.
type Decoder[T any] func(payload []byte) (T, error)

// DecodeString is a Decoder for lists whose items are the tasks themselves.
func DecodeString(payload []byte) (string, error) {
	return string(payload), nil
}

// RedisList pops items from the head of a Redis list and submits them.
// Items that fail to decode are logged, counted and dropped. An item the
// submitter refuses is pushed back to the head of the list, so nothing
// popped is lost when the pool shuts down.
type RedisList[T any] struct {
	client  redis.Cmdable
	key     string
	sub     Submitter[T]
	decode  Decoder[T]
	timeout time.Duration
	logger  *zap.Logger
	count   counter
}

// NewRedisList returns a feed popping from key.
func NewRedisList[T any](client redis.Cmdable, key string, sub Submitter[T], decode Decoder[T], cfg Config) (*RedisList[T], error) {
	if err := validation.First(
		validation.ValidateNotNil(module, "client", client),
		validation.ValidateNotEmpty(module, "key", key),
		validation.ValidateNotNil(module, "submitter", sub),
		validation.ValidateNotNil(module, "decoder", decode),
	); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults("redis")
	return &RedisList[T]{
		client:  client,
		key:     key,
		sub:     sub,
		decode:  decode,
		timeout: cfg.PollTimeout,
		logger:  cfg.Logger.Named(module).With(zap.String("feed", cfg.Name), zap.String("key", key)),
		count:   newCounter(cfg.Metrics, cfg.Name),
	}, nil
}

// Run pops and submits until ctx ends (returning nil), the submitter
// refuses a task (returning its error) or Redis fails (returning an
// *errors.OperationError).
func (r *RedisList[T]) Run(ctx context.Context) error {
	r.logger.Debug("redis feed started")
	defer r.logger.Debug("redis feed stopped")

	for ctx.Err() == nil {
		vals, err := r.client.BLPop(ctx, r.timeout, r.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return tperrors.NewOperationError(module, "RedisList", err).WithContext("key=" + r.key)
		case len(vals) != 2:
			return tperrors.NewOperationError(module, "RedisList",
				fmt.Errorf("unexpected BLPOP reply of %d elements", len(vals))).WithContext("key=" + r.key)
		}

		if err := r.handle(ctx, vals[1]); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisList[T]) handle(ctx context.Context, payload string) error {
	task, err := r.decode([]byte(payload))
	if err != nil {
		r.count.inc(OutcomeInvalid)
		r.logger.Warn("dropping undecodable item", zap.String("payload", payload), zap.Error(err))
		return nil
	}

	if err := r.sub.SubmitWithContext(ctx, task); err != nil {
		r.pushBack(payload)
		if ctx.Err() != nil {
			return nil
		}
		r.count.inc(OutcomeRejected)
		return err
	}
	r.count.inc(OutcomeSubmitted)
	return nil
}

func (r *RedisList[T]) pushBack(payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), pushBackTimeout)
	defer cancel()

	if err := r.client.LPush(ctx, r.key, payload).Err(); err != nil {
		r.logger.Error("failed to requeue item", zap.String("payload", payload), zap.Error(err))
		return
	}
	r.count.inc(OutcomeRequeued)
}
