// ============================================================================
// scancore Deduplication - Sliding-Window Bloom Filter
// ============================================================================
//
// Package: internal/dedup
// Function: Downstream fingerprint de-duplication for the at-least-once
//           delivery contract (spec.md §1 Non-goals: "no exactly-once
//           delivery (at-least-once + downstream fingerprint dedup)").
//
// Grounded on SebastienMelki-causality's internal/dedup: two rotating
// bloom filters (current/previous) give a bounded sliding window instead
// of unbounded memory growth, at the cost of false positives bounded by
// fpRate. A key is a duplicate if present in either filter; new keys are
// always added to current.
//
// ============================================================================

package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/scancore/scancore/internal/logging"
)

// Deduplicator is the fingerprint de-dup contract the scan controller
// depends on. Implementations must be safe for concurrent use.
type Deduplicator interface {
	// IsDuplicate reports whether fingerprint was already seen within the
	// sliding window, recording it if not. An empty fingerprint is never
	// a duplicate (events that opt out of dedup pass through unchanged).
	IsDuplicate(fingerprint string) bool
	// Start launches the background rotation goroutine. Stops when ctx
	// ends or Stop is called.
	Start(ctx context.Context)
	// Stop signals the rotation goroutine to stop and waits for it.
	Stop()
}

// BloomDeduplicator is the sliding-window bloom filter implementation.
type BloomDeduplicator struct {
	mu       sync.RWMutex
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	capacity uint
	fpRate   float64
	window   time.Duration

	log    *logging.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// Defaults mirror the causality teacher's typical tuning for a
// medium-volume event stream.
const (
	DefaultWindow   = 10 * time.Minute
	DefaultCapacity = 1_000_000
	DefaultFPRate   = 0.0001
)

// New creates a BloomDeduplicator. A zero window/capacity/fpRate falls
// back to the package defaults.
func New(window time.Duration, capacity uint, fpRate float64, log *logging.Logger) *BloomDeduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if fpRate <= 0 {
		fpRate = DefaultFPRate
	}
	if log == nil {
		log = logging.New(nil)
	}
	return &BloomDeduplicator{
		current:  bloom.NewWithEstimates(capacity, fpRate),
		previous: bloom.NewWithEstimates(capacity, fpRate),
		capacity: capacity,
		fpRate:   fpRate,
		window:   window,
		log:      log.With("component", "dedup"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// IsDuplicate checks current and previous, double-checking under the
// write lock before adding to avoid a race where two goroutines observe
// the same novel key simultaneously.
func (d *BloomDeduplicator) IsDuplicate(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	data := []byte(fingerprint)

	d.mu.RLock()
	if d.current.Test(data) || d.previous.Test(data) {
		d.mu.RUnlock()
		return true
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current.Test(data) || d.previous.Test(data) {
		return true
	}
	d.current.Add(data)
	return false
}

// Rotate swaps current to previous and starts a fresh current filter.
// Called every window/2 by the background goroutine, so a key stays
// visible for more than window/2 and at most one full window.
func (d *BloomDeduplicator) Rotate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.previous = d.current
	d.current = bloom.NewWithEstimates(d.capacity, d.fpRate)
}

// Window returns the configured sliding-window duration.
func (d *BloomDeduplicator) Window() time.Duration { return d.window }

// Start launches the rotation goroutine.
func (d *BloomDeduplicator) Start(ctx context.Context) {
	interval := d.window / 2
	d.log.Info("dedup started", "window", d.window, "rotate_interval", interval)

	go func() {
		defer close(d.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				d.Rotate()
				d.log.Debug("bloom filter rotated")
			case <-ctx.Done():
				d.log.Info("dedup stopping", "reason", "context cancelled")
				return
			case <-d.stopCh:
				d.log.Info("dedup stopping", "reason", "stop requested")
				return
			}
		}
	}()
}

// Stop signals the rotation goroutine and waits for it to exit.
func (d *BloomDeduplicator) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

var _ Deduplicator = (*BloomDeduplicator)(nil)
