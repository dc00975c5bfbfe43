// ============================================================================
// scancore Queue Pair - Bounded Priority Queues
// ============================================================================
//
// Package: internal/queuepair
// File: queue.go
// Function: The per-module incoming/outgoing priority queue (spec.md §4.C)
//
// Design:
//   A min-heap ordered by (priority, sequence) so that lower priority
//   numbers (1 = highest) dequeue first, and events of equal priority
//   dequeue in arrival order (stable FIFO within a priority band).
//
//   Each module owns two of these: an incoming queue fed by upstream
//   QueueEvent calls, and an outgoing queue fed by the module's own
//   EmitEvent calls and drained by the controller via TryPop (wrapped by
//   Module.DequeueOutgoingEvent).
//
// Lazy instantiation + disable-on-quarantine:
//   Queue is safe to use as a zero value (New() just pre-sizes the heap).
//   Disable() flips a sticky flag; once disabled, Push silently drops
//   items and TryPop/DrainUpTo return nothing immediately - this is the
//   "disabled sentinel" spec.md §3/§4.C requires, and it is never
//   re-enabled (§3 invariants).
//
// ============================================================================

package queuepair

import (
	"container/heap"
	"sync"
)

// Item is a value plus the priority/sequence key it was queued under.
type Item[T any] struct {
	Value    T
	Priority int
	seq      uint64
}

type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int { return len(h) }
func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap[T]) Push(x any)   { *h = append(*h, x.(*Item[T])) }
func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a priority-ordered FIFO-within-band queue. It has no capacity of
// its own; a module bounds its outgoing queue through the QSize backpressure
// gate. The zero value is an empty, usable queue.
type Queue[T any] struct {
	mu       sync.Mutex
	heap     itemHeap[T]
	nextSeq  uint64
	disabled bool
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{heap: make(itemHeap[T], 0)}
}

// Push enqueues value at the given priority (1-5, lower = first). It is a
// silent no-op on a disabled queue, matching the idempotent-against-disabled
// contract queue_event/queue_outgoing_event require.
func (q *Queue[T]) Push(value T, priority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.disabled {
		return false
	}
	q.nextSeq++
	heap.Push(&q.heap, &Item[T]{Value: value, Priority: priority, seq: q.nextSeq})
	return true
}

// TryPop removes and returns the highest-priority item without blocking.
// ok is false if the queue is empty or disabled.
func (q *Queue[T]) TryPop() (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.disabled || len(q.heap) == 0 {
		return value, false
	}
	item := heap.Pop(&q.heap).(*Item[T])
	return item.Value, true
}

// Len returns the current number of queued items. A disabled queue always
// reports 0, since its contents were drained at disable time.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Disabled reports whether Disable has been called. Sticky: never
// transitions back to false.
func (q *Queue[T]) Disabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.disabled
}

// Disable synchronously drains the queue and marks it disabled. Idempotent:
// calling it again is a no-op. This is the "disabled sentinel" a module's
// incoming queue becomes on quarantine (spec.md §4.A set_error_state).
func (q *Queue[T]) Disable() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.disabled {
		return
	}
	q.disabled = true
	q.heap = q.heap[:0]
}

// DrainUpTo non-blockingly pops at most n items in priority order. Used by
// the batch-arm dispatch to assemble a batch of size at most n, one over
// the configured batch size to detect saturation (spec.md §4.A Batching).
func (q *Queue[T]) DrainUpTo(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.disabled {
		return nil
	}
	out := make([]T, 0, n)
	for len(out) < n && len(q.heap) > 0 {
		item := heap.Pop(&q.heap).(*Item[T])
		out = append(out, item.Value)
	}
	return out
}
