// ============================================================================
// scancore Queue Pair - Broadcast Condition Variables
// ============================================================================
//
// Package: internal/queuepair
// File: broadcaster.go
// Function: Channel-based stand-in for the three asyncio.Condition variables
//           spec.md §4.C requires: event_received, event_dequeued, event_queued.
//
// Design (spec.md §9 "Conditions vs channels"):
//   A sync.Cond would work too, but it doesn't compose with select/context
//   cancellation the way a channel does, and this codebase's worker loops
//   already select on a stop signal. Broadcaster instead holds a channel
//   that Wait() receives from (or select-blocks on alongside a context);
//   Notify() closes the current channel (waking every blocked receiver)
//   and atomically swaps in a fresh one so the broadcaster can be reused.
//
// This reproduces "wake all awaiters of this condition" without requiring
// callers to hold any particular lock while waiting, matching the
// worker-pool's existing channel + mutex conventions (see internal/module).
//
// ============================================================================

package queuepair

import (
	"context"
	"sync"
)

// Broadcaster is a reusable, repeatable wake-all signal.
type Broadcaster struct {
	l  sync.Mutex
	ch chan struct{}
}

// NewBroadcaster creates a ready-to-use Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{ch: make(chan struct{})}
}

// Notify wakes every goroutine currently blocked in Wait.
func (b *Broadcaster) Notify() {
	b.l.Lock()
	defer b.l.Unlock()
	close(b.ch)
	b.ch = make(chan struct{})
}

// Wait blocks until the next Notify call, or until ctx is done. Returns
// ctx.Err() if ctx ends first.
func (b *Broadcaster) Wait(ctx context.Context) error {
	b.l.Lock()
	ch := b.ch
	b.l.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
