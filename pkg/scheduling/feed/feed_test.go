package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/taskpool/internal/testutil"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

var errRefused = errors.New("refused")

// recorder is a Submitter that stores what it receives and refuses every
// task after the first limit ones when limit is positive.
type recorder[T any] struct {
	mu    sync.Mutex
	got   []T
	limit int
}

func (r *recorder[T]) SubmitWithContext(ctx context.Context, task T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.got) >= r.limit {
		return errRefused
	}
	r.got = append(r.got, task)
	return nil
}

func (r *recorder[T]) items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

func TestFromSlice(t *testing.T) {
	rec := &recorder[int]{}
	n, err := FromSlice[int](context.Background(), rec, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, rec.items())

	limited := &recorder[int]{limit: 2}
	n, err = FromSlice[int](context.Background(), limited, []int{1, 2, 3, 4})
	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 2, n)
}

func TestFromSliceIntoPool(t *testing.T) {
	pool, err := workerpool.New(2, 0, func(_ context.Context, s string) (int, error) {
		return len(s), nil
	})
	require.NoError(t, err)
	pool.Start()

	type outcome struct {
		n   int
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		n, err := FromSlice[string](context.Background(), pool, []string{"a", "bb", "ccc"})
		_ = pool.Close()
		done <- outcome{n, err}
	}()

	total := 0
	for v, err := range pool.Values() {
		require.NoError(t, err)
		total += v
	}
	res := testutil.Receive(t, done)
	require.NoError(t, res.err)
	assert.Equal(t, 3, res.n)
	assert.Equal(t, 6, total)

	n, err := FromSlice[string](context.Background(), pool, []string{"late"})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, workerpool.ErrPoolClosed)
}

func TestFromChannel(t *testing.T) {
	t.Run("until closed", func(t *testing.T) {
		ch := make(chan int, 3)
		ch <- 1
		ch <- 2
		ch <- 3
		close(ch)

		rec := &recorder[int]{}
		n, err := FromChannel[int](context.Background(), rec, ch)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, []int{1, 2, 3}, rec.items())
	})

	t.Run("until context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		ch := make(chan int)
		go func() {
			ch <- 1
			cancel()
		}()

		rec := &recorder[int]{}
		n, err := FromChannel[int](ctx, rec, ch)
		assert.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, n, 1)
	})

	t.Run("until refused", func(t *testing.T) {
		ch := make(chan int, 3)
		ch <- 1
		ch <- 2
		close(ch)

		rec := &recorder[int]{limit: 1}
		n, err := FromChannel[int](context.Background(), rec, ch)
		assert.ErrorIs(t, err, errRefused)
		assert.Equal(t, 1, n)
	})
}
