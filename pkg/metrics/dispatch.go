package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records the batching worker's sweep and assignment activity.
type DispatchMetrics struct {
	sweepDuration  *prometheus.HistogramVec
	routesEnqueued *prometheus.CounterVec
	assignments    *prometheus.CounterVec
	failures       *prometheus.CounterVec
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_sweep_duration_seconds",
		Help:    "Duration of dispatch sweeps in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	routesEnqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_routes_enqueued",
		Help: "Orders enqueued onto route queues.",
	}, []string{"stage"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments",
		Help: "Routes assigned to shippers.",
	}, []string{"stage"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_failures",
		Help: "Failed dispatch operations.",
	}, []string{"stage"})
	reg.MustRegister(sweepDuration, routesEnqueued, assignments, failures)
	return &DispatchMetrics{
		sweepDuration:  sweepDuration,
		routesEnqueued: routesEnqueued,
		assignments:    assignments,
		failures:       failures,
	}
}

// ObserveSweepDuration records the duration of one sweep stage.
func (d *DispatchMetrics) ObserveSweepDuration(stage string, duration time.Duration) {
	if d == nil || d.sweepDuration == nil {
		return
	}
	d.sweepDuration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncRoutesEnqueued increments the enqueued counter for the named stage.
func (d *DispatchMetrics) IncRoutesEnqueued(stage string) {
	if d == nil || d.routesEnqueued == nil {
		return
	}
	d.routesEnqueued.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncAssignments increments the assignment counter for the named stage.
func (d *DispatchMetrics) IncAssignments(stage string) {
	if d == nil || d.assignments == nil {
		return
	}
	d.assignments.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncFailures increments the failure counter for the named stage.
func (d *DispatchMetrics) IncFailures(stage string) {
	if d == nil || d.failures == nil {
		return
	}
	d.failures.WithLabelValues(normalizeLabel(stage)).Inc()
}

func normalizeLabel(stage string) string {
	if stage == "" {
		return "unknown"
	}
	return stage
}
