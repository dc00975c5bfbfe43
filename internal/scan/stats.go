// ============================================================================
// scancore Scan Controller - Statistics Sink
// ============================================================================
//
// Package: internal/scan
// File: stats.go
// Purpose: Per-module consumed/produced counts (spec.md §6 status envelope),
//          forwarded into internal/metrics so they surface on /metrics
//          alongside the per-module queue depth and task duration series.
//
// ============================================================================

package scan

import (
	"sync"

	"github.com/scancore/scancore/internal/metrics"
	"github.com/scancore/scancore/pkg/types"
)

// StatsSink receives consumption/production notifications from every
// module in the scan.
type StatsSink interface {
	Consumed(e *types.Event, moduleName string)
	Produced(e *types.Event)
}

// metricsStatsSink keeps small in-memory per-module counters (queryable via
// Engine.Stats) and mirrors every update into a Prometheus Collector.
type metricsStatsSink struct {
	mu       sync.Mutex
	consumed map[string]int
	produced map[string]int
	metrics  *metrics.Collector
}

func newMetricsStatsSink(mc *metrics.Collector) *metricsStatsSink {
	return &metricsStatsSink{
		consumed: make(map[string]int),
		produced: make(map[string]int),
		metrics:  mc,
	}
}

func (s *metricsStatsSink) Consumed(e *types.Event, moduleName string) {
	s.mu.Lock()
	s.consumed[moduleName]++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RecordConsumed(moduleName)
	}
}

func (s *metricsStatsSink) Produced(e *types.Event) {
	moduleName := e.Module
	s.mu.Lock()
	s.produced[moduleName]++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RecordProduced(moduleName)
	}
}

// Snapshot returns copies of the current consumed/produced tallies, keyed by
// module name.
func (s *metricsStatsSink) Snapshot() (consumed, produced map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	consumed = make(map[string]int, len(s.consumed))
	for k, v := range s.consumed {
		consumed[k] = v
	}
	produced = make(map[string]int, len(s.produced))
	for k, v := range s.produced {
		produced[k] = v
	}
	return consumed, produced
}

var _ StatsSink = (*metricsStatsSink)(nil)
