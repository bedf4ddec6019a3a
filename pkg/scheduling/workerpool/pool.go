package workerpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/metrics"
)

const module = "workerpool"

// Handler processes one task. It receives the pool's cancellation context
// and should return promptly once ctx is done.
type Handler[T, R any] func(ctx context.Context, task T) (R, error)

// Result represents the outcome of one task: either Value or Error is meaningful.
type Result[T, R any] struct {
	// Task is the original task that was executed
	Task T

	// Value is the handler's return value; the zero value when Error is set
	Value R

	// Error is any error returned by the handler, a *PanicError, or
	// ErrTaskCancelled for a task abandoned after cancellation
	Error error

	// Seq is the submission sequence number of the task, starting at 1
	Seq uint64

	// Duration is how long the handler ran
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// OK reports whether the task succeeded.
func (r Result[T, R]) OK() bool {
	return r.Error == nil
}

// Unwrap returns the value and error pair.
func (r Result[T, R]) Unwrap() (R, error) {
	return r.Value, r.Error
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// QueueSize is the capacity of the task queue.
	// 0 means an unbuffered handoff: Submit blocks until a worker takes the task.
	QueueSize int

	// ResultBuffer is the capacity of the result channel. 0 means every
	// result waits for the consumer.
	ResultBuffer int

	// TaskTimeout bounds each handler invocation. Zero means no timeout.
	TaskTimeout time.Duration

	// Name labels logs and metrics. Defaults to "workerpool".
	Name string

	// Logger receives lifecycle and panic logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics enables Prometheus instrumentation when non-nil.
	Metrics *metrics.Registry

	// PanicHandler is called after a handler panic has been recovered.
	PanicHandler func(workerID int, recovered interface{})

	// OnWorkerStart is called when a worker starts.
	// Useful for per-worker initialization (e.g., database connections).
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)
}

// DefaultConfig returns a configuration sized for CPU-bound work.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		WorkerCount: n,
		QueueSize:   2 * n,
		Name:        module,
	}
}

// Pool is a bounded, cancellable worker pool. Tasks of type T are run by a
// fixed number of workers and their outcomes of type R are delivered on
// the Results channel, which closes once every worker has exited.
type Pool[T, R any] struct {
	config  Config
	handler Handler[T, R]
	logger  *zap.Logger
	inst    *instruments

	tasks   chan envelope[T]
	results chan Result[T, R]
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelCauseFunc

	// intake
	mu         sync.RWMutex
	closed     bool
	closing    chan struct{}
	submitters sync.WaitGroup

	startOnce sync.Once
	started   atomic.Bool
	unlink    func() bool

	seq       atomic.Uint64
	exited    atomic.Int32
	active    atomic.Int32
	submitted atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64
}

type envelope[T any] struct {
	task     T
	seq      uint64
	enqueued time.Time
}

// New creates a worker pool with the given worker count and queue capacity.
// Call Start to launch the workers.
func New[T, R any](workerCount, queueSize int, handler Handler[T, R]) (*Pool[T, R], error) {
	return NewWithConfig(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	}, handler)
}

// NewWithConfig creates a worker pool with the specified configuration.
// Invalid settings yield an error matching ErrInvalidConfiguration.
func NewWithConfig[T, R any](config Config, handler Handler[T, R]) (*Pool[T, R], error) {
	if err := validation.First(
		validation.ValidatePositive(module, "WorkerCount", config.WorkerCount),
		validation.ValidateNonNegative(module, "QueueSize", config.QueueSize),
		validation.ValidateNonNegative(module, "ResultBuffer", config.ResultBuffer),
		validation.ValidateNonNegativeDuration(module, "TaskTimeout", config.TaskTimeout),
		validation.ValidateNotNil(module, "handler", handler),
	); err != nil {
		return nil, err
	}

	if config.Name == "" {
		config.Name = module
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancelCause(context.Background())

	return &Pool[T, R]{
		config:  config,
		handler: handler,
		logger:  logger.Named(module).With(zap.String("pool", config.Name)),
		inst:    newInstruments(config.Metrics, config.Name),
		tasks:   make(chan envelope[T], config.QueueSize),
		results: make(chan Result[T, R], config.ResultBuffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		closing: make(chan struct{}),
	}, nil
}
