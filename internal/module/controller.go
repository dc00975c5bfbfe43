// ============================================================================
// scancore Module Runtime - Controller Contract
// ============================================================================
//
// Package: internal/module
// File: controller.go
// Purpose: The narrow slice of the Scan Controller Interface (spec.md §4.D)
//          that the module runtime itself depends on. internal/scan.Engine
//          implements this interface; defining it here (at the point of
//          use, per Go idiom) keeps internal/module free of any import on
//          internal/scan, since the engine in turn holds Modules.
//
// ============================================================================

package module

import (
	"context"

	"github.com/scancore/scancore/pkg/types"
)

// EventOpts are the event-minting parameters a module passes to MakeEvent /
// EmitEvent: everything needed to construct an Event except the module
// attribution, which MakeEvent fills in when unset.
type EventOpts struct {
	Type          types.EventType
	ScopeDistance int
	Tags          map[types.Tag]struct{}
	Source        *types.Event
	Data          types.EventData
	Priority      int
	Module        string // overrides the minting module's own name, if set
}

// EmitOptions is the subset of emit kwargs the original passes through to
// the controller untouched: {on_success_callback, abort_if, quick}.
type EmitOptions struct {
	OnSuccessCallback func(*types.Event)
	AbortIf           func(*types.Event) bool
	Quick             bool
}

// OutgoingItem is an (event, emit options) pair as queued on a module's
// outgoing queue (spec.md §4.C).
type OutgoingItem struct {
	Event   *types.Event
	Options EmitOptions
}

// Controller is what a Module needs from its scan controller: minting
// events, polling global stop state, checking the active-module
// whitelist, reading the configured scope search distance, and recording
// consumption/production stats. Everything else (global bootstrap,
// dependency installation, persistence) is out of scope per spec.md §1.
type Controller interface {
	// MakeEvent mints a new Event from opts, or returns a *ValidationError.
	MakeEvent(ctx context.Context, opts EventOpts) (*types.Event, error)
	// Stopping reports whether the scan has begun a global stop. Polled
	// cooperatively at the top of each worker loop iteration (spec.md §5).
	Stopping() bool
	// InWhitelist reports whether e is covered by the scan's whitelist,
	// used by the active-module post-check rule.
	InWhitelist(e *types.Event) bool
	// ScopeSearchDistance is the scan's configured search distance, used
	// to compute a module's max_scope_distance.
	ScopeSearchDistance() int
	// StatsConsumed records that moduleName consumed e.
	StatsConsumed(e *types.Event, moduleName string)
	// StatsProduced records that e was produced by an output module.
	StatsProduced(e *types.Event)
	// ACatch runs fn, capturing and logging (with label as context) any
	// panic or returned error, and never propagates it to the caller.
	// This is the Go analogue of scan.acatch(context=...).
	ACatch(ctx context.Context, label string, fn func(context.Context) error)
}
