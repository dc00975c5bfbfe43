// ============================================================================
// scancore Module Runtime - Task Counter & Status
// ============================================================================
//
// Package: internal/module
// File: status.go
// Purpose: The task_counter from spec.md §3/§4.E: incremented on entering
//          any user-callback-invoking block, decremented on exit regardless
//          of outcome. running = task_counter > 0. finished = !running &&
//          both queues empty.
//
// ============================================================================

package module

import "sync/atomic"

// taskCounter tracks in-flight handle_event/handle_batch/finish/report/
// cleanup invocations. Acquire returns a release func so callers can use
// it as a scoped "with" block via defer, mirroring the original's context
// manager.
type taskCounter struct {
	n atomic.Int64
}

// acquire increments the counter and returns a func that decrements it.
// Safe to call from multiple goroutines concurrently.
func (c *taskCounter) acquire() func() {
	c.n.Add(1)
	return func() { c.n.Add(-1) }
}

func (c *taskCounter) value() int {
	return int(c.n.Load())
}
