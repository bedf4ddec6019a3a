package feed

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/taskpool/internal/testutil"
	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:         mr.Addr(),
		Protocol:     2,
		DialTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
		PoolSize:     2,
		MaxRetries:   1,
	})

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func decodeInt(payload []byte) (int, error) {
	return strconv.Atoi(string(payload))
}

func TestNewRedisListValidation(t *testing.T) {
	client, _ := newTestRedis(t)
	rec := &recorder[int]{}

	_, err := NewRedisList[int](nil, "jobs", rec, decodeInt, Config{})
	assert.ErrorIs(t, err, tperrors.ErrInvalidConfiguration)

	var typedNil *redis.Client
	_, err = NewRedisList[int](typedNil, "jobs", rec, decodeInt, Config{})
	assert.ErrorIs(t, err, tperrors.ErrInvalidConfiguration)

	_, err = NewRedisList[int](client, "", rec, decodeInt, Config{})
	assert.ErrorIs(t, err, tperrors.ErrInvalidConfiguration)

	_, err = NewRedisList[int](client, "jobs", rec, nil, Config{})
	assert.ErrorIs(t, err, tperrors.ErrInvalidConfiguration)
}

func TestRedisListSubmitsDecodedItems(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, client.RPush(ctx, "jobs", "1", "oops", "2", "3").Err())

	rec := &recorder[int]{}
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	feed, err := NewRedisList[int](client, "jobs", rec, decodeInt, Config{Name: "jobs", Metrics: reg})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- feed.Run(runCtx) }()

	testutil.Eventually(t, func() bool { return len(rec.items()) == 3 }, testutil.TestTimeout, 5*time.Millisecond)
	cancel()
	require.NoError(t, testutil.Receive(t, done))

	assert.Equal(t, []int{1, 2, 3}, rec.items())
	assert.Equal(t, 3.0, promtest.ToFloat64(reg.FeedItems.WithLabelValues("jobs", OutcomeSubmitted)))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.FeedItems.WithLabelValues("jobs", OutcomeInvalid)))

	n, err := client.LLen(ctx, "jobs").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisListPushesBackRefusedItem(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, client.RPush(ctx, "jobs", "7", "8").Err())

	pool, err := workerpool.New(1, 1, func(_ context.Context, x int) (int, error) {
		return x, nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	feed, err := NewRedisList[int](client, "jobs", pool, decodeInt, Config{Name: "jobs", Metrics: reg})
	require.NoError(t, err)

	runCtx, cancel := testutil.WithTimeout(t)
	defer cancel()

	err = feed.Run(runCtx)
	assert.ErrorIs(t, err, workerpool.ErrPoolClosed)
	assert.True(t, tperrors.IsLifecycle(err))

	items, err := client.LRange(ctx, "jobs", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "8"}, items, "refused item goes back to the head")
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.FeedItems.WithLabelValues("jobs", OutcomeRequeued)))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.FeedItems.WithLabelValues("jobs", OutcomeRejected)))
}

func TestRedisListServerGone(t *testing.T) {
	client, mr := newTestRedis(t)
	feed, err := NewRedisList[string](client, "jobs", &recorder[string]{}, DecodeString, Config{})
	require.NoError(t, err)

	mr.Close()

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	err = feed.Run(ctx)
	var opErr *tperrors.OperationError
	require.True(t, errors.As(err, &opErr), "got %v", err)
	assert.Equal(t, "RedisList", opErr.Operation)
	assert.Contains(t, err.Error(), "key=jobs")
}

func TestDecodeString(t *testing.T) {
	s, err := DecodeString([]byte("/tmp/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.txt", s)
}
