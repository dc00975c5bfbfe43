// ============================================================================
// scancore Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose module-runtime metrics for Prometheus.
//
// Monitoring Philosophy:
//   Based on RED (Rate, Errors, Duration) and USE (Utilization, Saturation,
//   Errors), scoped to the module execution core rather than a specific
//   scan's domain events.
//
// Metric Categories:
//
//   1. Event Counters - cumulative, monotonically increasing:
//      - scancore_events_consumed_total{module}: events handed to handle_event/handle_batch
//      - scancore_events_produced_total{module}: events emitted to the outgoing queue
//      - scancore_events_rejected_total{module,stage}: dropped events; the scan
//        engine records duplicate-fingerprint drops under stage "dedup".
//        Admission-filter (precheck/postcheck) rejections are not recorded.
//      - scancore_module_quarantined_total{module}: SetErrorState invocations
//
//   2. Performance Metrics (Histogram):
//      - scancore_task_duration_seconds{module,task}: callback wall time
//
//   3. Status Metrics (Gauge) - instantaneous:
//      - scancore_queue_depth{module,queue}: incoming/outgoing queue length
//
// Each Collector owns a private prometheus.Registry rather than the global
// DefaultRegisterer, so constructing more than one Collector (as tests do)
// never panics on duplicate registration.
//
// ============================================================================

package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for the module runtime.
type Collector struct {
	registry *prometheus.Registry

	eventsConsumed *prometheus.CounterVec
	eventsProduced *prometheus.CounterVec
	eventsRejected *prometheus.CounterVec
	quarantined    *prometheus.CounterVec

	taskDuration *prometheus.HistogramVec

	queueDepth *prometheus.GaugeVec
}

// New creates a Collector backed by a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scancore_events_consumed_total",
			Help: "Total number of events handed to a module's handle_event/handle_batch",
		}, []string{"module"}),
		eventsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scancore_events_produced_total",
			Help: "Total number of events emitted by a module",
		}, []string{"module"}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scancore_events_rejected_total",
			Help: "Total number of events dropped before reaching a module",
		}, []string{"module", "stage"}),
		quarantined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scancore_module_quarantined_total",
			Help: "Total number of times a module entered the error state",
		}, []string{"module"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scancore_task_duration_seconds",
			Help:    "Wall time of a module callback invocation",
			Buckets: prometheus.DefBuckets,
		}, []string{"module", "task"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scancore_queue_depth",
			Help: "Current queue depth for a module",
		}, []string{"module", "queue"}),
	}

	c.registry.MustRegister(
		c.eventsConsumed,
		c.eventsProduced,
		c.eventsRejected,
		c.quarantined,
		c.taskDuration,
		c.queueDepth,
	)
	return c
}

// RecordConsumed increments the consumed-events counter for module.
func (c *Collector) RecordConsumed(module string) {
	c.eventsConsumed.WithLabelValues(module).Inc()
}

// RecordProduced increments the produced-events counter for module.
func (c *Collector) RecordProduced(module string) {
	c.eventsProduced.WithLabelValues(module).Inc()
}

// RecordRejected increments the rejected-events counter for (module, stage).
// stage is a free-form label; the scan engine passes "dedup".
func (c *Collector) RecordRejected(module, stage string) {
	c.eventsRejected.WithLabelValues(module, stage).Inc()
}

// RecordQuarantine increments the quarantine counter for module.
func (c *Collector) RecordQuarantine(module string) {
	c.quarantined.WithLabelValues(module).Inc()
}

// ObserveTaskDuration records how long a (module, task) callback took.
func (c *Collector) ObserveTaskDuration(module, task string, seconds float64) {
	c.taskDuration.WithLabelValues(module, task).Observe(seconds)
}

// SetQueueDepth records the current depth of a module's named queue
// ("incoming" or "outgoing").
func (c *Collector) SetQueueDepth(module, queue string, depth int) {
	c.queueDepth.WithLabelValues(module, queue).Set(float64(depth))
}

// Handler returns the HTTP handler serving this Collector's registry in
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves this Collector's /metrics endpoint on port, blocking
// until ctx is cancelled or the server fails.
func (c *Collector) StartServer(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
