package workerpool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/taskpool/pkg/metrics"
)

// instruments binds the registry's collectors to one pool name. A nil
// *instruments records nothing.
type instruments struct {
	size      prometheus.Gauge
	active    prometheus.Gauge
	queued    prometheus.Gauge
	submitted prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	rejected  *prometheus.CounterVec
	duration  prometheus.Observer
	queueWait prometheus.Observer
}

func newInstruments(reg *metrics.Registry, name string) *instruments {
	if reg == nil {
		return nil
	}
	return &instruments{
		size:      reg.WorkerPoolSize.WithLabelValues(name),
		active:    reg.WorkerPoolActive.WithLabelValues(name),
		queued:    reg.WorkerPoolQueued.WithLabelValues(name),
		submitted: reg.TasksSubmitted.WithLabelValues(name),
		completed: reg.TasksCompleted.WithLabelValues(name),
		failed:    reg.TasksFailed.WithLabelValues(name),
		rejected:  reg.TasksRejected.MustCurryWith(prometheus.Labels{"pool_name": name}),
		duration:  reg.TaskExecutionDuration.WithLabelValues(name),
		queueWait: reg.TaskQueueWait.WithLabelValues(name),
	}
}

func (i *instruments) setSize(n int) {
	if i == nil {
		return
	}
	i.size.Set(float64(n))
}

func (i *instruments) setActive(n int) {
	if i == nil {
		return
	}
	i.active.Set(float64(n))
}

func (i *instruments) setQueued(n int) {
	if i == nil {
		return
	}
	i.queued.Set(float64(n))
}

func (i *instruments) taskSubmitted(queued int) {
	if i == nil {
		return
	}
	i.submitted.Inc()
	i.queued.Set(float64(queued))
}

func (i *instruments) taskRejected(reason string) {
	if i == nil {
		return
	}
	i.rejected.WithLabelValues(reason).Inc()
}

func (i *instruments) observeQueueWait(d time.Duration) {
	if i == nil {
		return
	}
	i.queueWait.Observe(d.Seconds())
}

func (i *instruments) taskFinished(d time.Duration, err error) {
	if i == nil {
		return
	}
	i.duration.Observe(d.Seconds())
	if err != nil {
		i.failed.Inc()
	} else {
		i.completed.Inc()
	}
}
