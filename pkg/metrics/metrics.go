// Package metrics provides Prometheus instrumentation for taskpool components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for taskpool components.
type Registry struct {
	// Worker pool metrics
	WorkerPoolSize        *prometheus.GaugeVec
	WorkerPoolActive      *prometheus.GaugeVec
	WorkerPoolQueued      *prometheus.GaugeVec
	TasksSubmitted        *prometheus.CounterVec
	TasksRejected         *prometheus.CounterVec
	TasksCompleted        *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TaskExecutionDuration *prometheus.HistogramVec
	TaskQueueWait         *prometheus.HistogramVec

	// Handler middleware metrics
	HandlerCalls    *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec

	// Feed metrics
	FeedItems *prometheus.CounterVec
}

// DefaultRegistry is the registry bound to prometheus.DefaultRegisterer.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{
		Enabled:   true,
		Registry:  reg,
		Namespace: DefaultNamespace,
	})
}

// NewRegistryWithConfig creates a registry honoring the namespace, const
// labels and registerer in cfg. Registration panics on duplicate metric
// names, as promauto does.
//
// When cfg.Enabled is false nothing is registered and the result is nil,
// which every taskpool component treats as "metrics off".
func NewRegistryWithConfig(cfg Config) *Registry {
	if !cfg.Enabled {
		return nil
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	histogram := func(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
			Buckets:     prometheus.DefBuckets,
		}, labels)
	}

	return &Registry{
		WorkerPoolSize:        gauge("workerpool", "size", "Number of workers in the pool", "pool_name"),
		WorkerPoolActive:      gauge("workerpool", "active_workers", "Number of workers currently running a task", "pool_name"),
		WorkerPoolQueued:      gauge("workerpool", "queued_tasks", "Number of tasks waiting in the queue", "pool_name"),
		TasksSubmitted:        counter("workerpool", "tasks_submitted_total", "Total number of tasks accepted into the queue", "pool_name"),
		TasksRejected:         counter("workerpool", "tasks_rejected_total", "Total number of submissions refused", "pool_name", "reason"),
		TasksCompleted:        counter("workerpool", "tasks_completed_total", "Total number of tasks completed successfully", "pool_name"),
		TasksFailed:           counter("workerpool", "tasks_failed_total", "Total number of tasks that produced an error", "pool_name"),
		TaskExecutionDuration: histogram("workerpool", "task_duration_seconds", "Time spent executing tasks", "pool_name"),
		TaskQueueWait:         histogram("workerpool", "task_queue_wait_seconds", "Time tasks spent queued before a worker picked them up", "pool_name"),

		HandlerCalls:    counter("handler", "calls_total", "Total number of instrumented handler invocations", "handler_name", "outcome"),
		HandlerDuration: histogram("handler", "duration_seconds", "Time spent in instrumented handlers", "handler_name"),

		FeedItems: counter("feed", "items_total", "Total number of items handled by feeds", "feed_name", "outcome"),
	}
}
