// Package metrics provides Prometheus instrumentation for taskpool components.
//
// # Overview
//
// A Registry groups the collectors used by the worker pool, the handler
// middleware and the task feeds. Components take a *Registry and a name;
// the name becomes the pool_name, handler_name or feed_name label.
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	pool, err := workerpool.NewWithConfig(workerpool.Config{
//		WorkerCount: 4,
//		QueueSize:   64,
//		Name:        "thumbnails",
//		Metrics:     reg,
//	}, resize)
//
// DefaultRegistry is registered on prometheus.DefaultRegisterer and is what
// promhttp.Handler() serves.
//
// # Available Metrics
//
// ## Worker Pool
//
//   - taskpool_workerpool_size
//   - taskpool_workerpool_active_workers
//   - taskpool_workerpool_queued_tasks
//   - taskpool_workerpool_tasks_submitted_total
//   - taskpool_workerpool_tasks_rejected_total{reason="closed|cancelled|context|queue_full"}
//   - taskpool_workerpool_tasks_completed_total
//   - taskpool_workerpool_tasks_failed_total
//   - taskpool_workerpool_task_duration_seconds
//   - taskpool_workerpool_task_queue_wait_seconds
//
// ## Handlers
//
//   - taskpool_handler_calls_total{outcome="ok|error"}
//   - taskpool_handler_duration_seconds
//
// ## Feeds
//
//   - taskpool_feed_items_total{outcome="submitted|rejected|decode_error|requeued"}
//
// # Custom Registry
//
// Use a dedicated prometheus.Registry to keep tests and multiple
// instances isolated:
//
//	reg := metrics.NewRegistryWithConfig(metrics.Config{
//		Enabled:   true,
//		Registry:  prometheus.NewRegistry(),
//		Namespace: "myapp",
//		Labels:    prometheus.Labels{"version": "1.0"},
//	})
package metrics
