package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.TasksSubmitted.WithLabelValues("p").Add(3)
	r.TasksRejected.WithLabelValues("p", "closed").Inc()
	r.WorkerPoolSize.WithLabelValues("p").Set(4)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.TasksSubmitted.WithLabelValues("p")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TasksRejected.WithLabelValues("p", "closed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.WorkerPoolSize.WithLabelValues("p")))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		assert.True(t, strings.HasPrefix(mf.GetName(), "taskpool_"), mf.GetName())
	}
}

func TestNewRegistryWithConfig(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWithConfig(Config{
		Enabled:   true,
		Registry:  reg,
		Namespace: "myapp",
		Labels:    prometheus.Labels{"version": "1.0"},
	})
	r.FeedItems.WithLabelValues("jobs", "submitted").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "myapp_feed_items_total" {
			continue
		}
		found = true
		labels := mf.GetMetric()[0].GetLabel()
		var version string
		for _, l := range labels {
			if l.GetName() == "version" {
				version = l.GetValue()
			}
		}
		assert.Equal(t, "1.0", version)
	}
	assert.True(t, found, "myapp_feed_items_total not gathered")
}

func TestNewRegistryWithConfigDisabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.Registry = reg

	assert.Nil(t, NewRegistryWithConfig(cfg))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)

	// the same registerer is still free for an enabled registry
	cfg.Enabled = true
	assert.NotPanics(t, func() { NewRegistryWithConfig(cfg) })
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistry(reg)
	assert.Panics(t, func() { NewRegistry(reg) })
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, DefaultNamespace, cfg.Namespace)
	assert.Equal(t, prometheus.DefaultRegisterer, cfg.Registry)
	assert.NotNil(t, DefaultRegistry)
}
