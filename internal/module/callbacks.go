// ============================================================================
// scancore Module Runtime - User Callback Surface
// ============================================================================
//
// Package: internal/module
// File: callbacks.go
// Purpose: The capability interface a concrete module satisfies, with
//          DefaultCallbacks providing the no-op defaults every spec.md
//          §3 "user-overridable callback" has in the original (setup,
//          handle_event, handle_batch, finish, report, filter_event,
//          cleanup). This is the Go analogue of subclassing BaseModule
//          and overriding only what you need (spec.md §9).
//
// ============================================================================

package module

import (
	"context"

	"github.com/scancore/scancore/pkg/types"
)

// SetupResult is the tri-state outcome of a module's Setup callback,
// reproducing the true/false/nil trichotomy from spec.md §4.A:
//   SetupOK       -> true:  setup succeeded, workers start
//   SetupHardFail -> false: module permanently disabled, not started
//   SetupSoftFail -> nil:   module disabled, scan continues without a
//                           hard-failure report
type SetupResult int

const (
	SetupOK SetupResult = iota
	SetupHardFail
	SetupSoftFail
)

// SetupOutcome is what Setup returns: a result plus an optional message,
// matching the original's "(bool, message)" return convention.
type SetupOutcome struct {
	Result  SetupResult
	Message string
}

// Callbacks is the set of methods a concrete module implements. Embed
// DefaultCallbacks to get harmless defaults for anything you don't need to
// override.
type Callbacks interface {
	// Setup performs one-time setup at the beginning of the scan.
	Setup(ctx context.Context) (SetupOutcome, error)
	// HandleEvent processes a single event. Only called when BatchSize <= 1.
	HandleEvent(ctx context.Context, event *types.Event) error
	// HandleBatch processes a batch of events at once. Only called when
	// BatchSize > 1.
	HandleBatch(ctx context.Context, events []*types.Event) error
	// FilterEvent applies module-specific admission criteria beyond scope
	// and flags. A false result with a non-empty reason is surfaced to
	// the admission-filter rejection log.
	FilterEvent(ctx context.Context, event *types.Event) (bool, string)
	// Finish runs when the scan is nearing completion. May be called more
	// than once, and may itself emit events.
	Finish(ctx context.Context) error
	// Report runs once, after the scan's global finish signal, before
	// Cleanup (spec.md §9 Open Question resolution; see DESIGN.md).
	Report(ctx context.Context) error
	// Cleanup runs exactly once, after the scan has finished. Must not
	// raise events.
	Cleanup(ctx context.Context) error
}

// DefaultCallbacks implements Callbacks with the original's no-op/true
// defaults. Concrete modules embed this and override only what's needed.
type DefaultCallbacks struct{}

func (DefaultCallbacks) Setup(ctx context.Context) (SetupOutcome, error) {
	return SetupOutcome{Result: SetupOK}, nil
}

func (DefaultCallbacks) HandleEvent(ctx context.Context, event *types.Event) error { return nil }

func (DefaultCallbacks) HandleBatch(ctx context.Context, events []*types.Event) error { return nil }

func (DefaultCallbacks) FilterEvent(ctx context.Context, event *types.Event) (bool, string) {
	return true, ""
}

func (DefaultCallbacks) Finish(ctx context.Context) error { return nil }

func (DefaultCallbacks) Report(ctx context.Context) error { return nil }

func (DefaultCallbacks) Cleanup(ctx context.Context) error { return nil }
