// ============================================================================
// scancore Core Type Definitions
// ============================================================================
//
// Package: pkg/types
// Purpose: Core domain models shared by every module and by the scan engine
//
// Design Principles:
//   1. Immutability - an Event never changes after MakeEvent returns it
//   2. Open event taxonomy - Type is a plain string; the core only
//      recognizes the FINISHED sentinel and a couple of tag names
//   3. JSON Serialization - Data payloads stay forward-compatible via
//      EventData/RawData
//
// Core Types:
//   - Event: immutable record flowing through the module pipeline
//   - ModuleConfig: declarative, type-level configuration for a module
//   - Status: runtime snapshot exposed by a module to its controller
//
// ============================================================================

// Package types defines the core domain models for the scancore module
// execution core.
package types

import "sync/atomic"

// EventType is an open-set string tag. FinishedEvent is the one reserved
// value the core itself interprets.
type EventType string

// FinishedEvent is the sentinel type signalling scan completion to a module.
// It bypasses scope/flag/custom filtering and triggers Finish, never a batch.
const FinishedEvent EventType = "FINISHED"

// Tag is a recognized marker in Event.Tags. The core only ever inspects
// TagTarget and TagHTTPXOnly; modules may attach arbitrary other tags.
type Tag string

const (
	TagTarget    Tag = "target"
	TagHTTPXOnly Tag = "httpx-only"
)

// Flag is a module capability flag. Every module must carry at least one of
// FlagPassive or FlagActive.
type Flag string

const (
	FlagPassive Flag = "passive"
	FlagActive  Flag = "active"
)

// ModuleType differentiates normal scan modules from output modules, which
// get different scope handling and always record produced-event stats.
type ModuleType string

const (
	ModuleTypeScan   ModuleType = "scan"
	ModuleTypeOutput ModuleType = "output"
)

// EventData is the open, duck-typed event payload. Concrete scanning
// modules define their own Kind values and richer structs implementing
// this interface; the core only ever stores and forwards it.
type EventData interface {
	Kind() string
}

// RawData is the forward-compatible fallback payload for event kinds the
// reader doesn't know about yet.
type RawData map[string]any

func (RawData) Kind() string { return "raw" }

// Event is an immutable record flowing from a producing module to its
// consumers. Once minted, its fields must not be mutated except via the
// _stats_recorded latch, which is intentionally append-only (false -> true).
type Event struct {
	Type          EventType
	ScopeDistance int // invariant: events are valid only when >= 0
	Tags          map[Tag]struct{}
	Source        *Event // back-reference DAG; nil for seed/root events
	Module        string // attribution; filled by module.(*Module).MakeEvent when unset
	Data          EventData
	Priority      int    // 1-5, lower sorts first; inherited from producing module
	Fingerprint   string // stable dedup key (see internal/dedup)

	statsRecorded atomic.Bool
}

// HasTag reports whether t is present on the event.
func (e *Event) HasTag(t Tag) bool {
	if e == nil || e.Tags == nil {
		return false
	}
	_, ok := e.Tags[t]
	return ok
}

// StatsRecorded reports whether the produced-event stat has already been
// recorded for this event (the "_stats_recorded" latch).
func (e *Event) StatsRecorded() bool {
	return e.statsRecorded.Load()
}

// MarkStatsRecorded flips the latch and reports whether this call was the
// one that flipped it (false -> true). Safe for concurrent callers; only
// the first caller gets true.
func (e *Event) MarkStatsRecorded() bool {
	return e.statsRecorded.CompareAndSwap(false, true)
}

// SourceType returns the type of the event's source, or "" if it has none.
// Convenience for admission-filter rules that inspect event.source.type.
func (e *Event) SourceType() EventType {
	if e == nil || e.Source == nil {
		return ""
	}
	return e.Source.Type
}

// ClampPriority clamps p into the valid [1,5] range, lower = higher priority.
func ClampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 5 {
		return 5
	}
	return p
}

// ModuleConfig is the declarative, type-level configuration a concrete
// module sets up once. It never changes after construction.
type ModuleConfig struct {
	Name           string
	Type           ModuleType
	WatchedEvents  map[EventType]struct{} // "*" key means "any type"
	ProducedEvents map[EventType]struct{}
	Flags          map[Flag]struct{}

	AcceptDupes   bool
	SuppressDupes bool

	// ScopeDistanceModifier is nil == accept all events regardless of
	// scope distance. Otherwise it shifts the scan's configured search
	// distance up or down for this module's admission.
	ScopeDistanceModifier *int
	TargetOnly            bool
	InScopeOnly           bool

	MaxEventHandlers            int
	BatchSize                   int
	BatchWait                   float64 // seconds
	FailedRequestAbortThreshold int

	Priority int // 1-5, clamped by ClampPriority
	QSize    int // outgoing queue capacity, 0 == unbounded

	Options     map[string]any
	OptionsDesc map[string]string

	// ScopeShepherding mirrors the original's _scope_shepherding: when
	// false, events raised by this module are not auto-promoted in-scope.
	// Useful for low-confidence modules (speculate, ipneighbor analogues).
	ScopeShepherding bool
	// StatsExclude mirrors _stats_exclude: exclude this module from scan
	// statistics entirely.
	StatsExclude bool

	// SpeculationModuleName and HTTPFetchModuleName override the admission
	// filter's hardcoded "speculate"/"httpx" module-name comparisons, for
	// scans that rename their equivalents. Empty means use the default.
	SpeculationModuleName string
	HTTPFetchModuleName   string
}

const WatchAny EventType = "*"

// WatchesAny reports whether this config watches all event types.
func (c *ModuleConfig) WatchesAny() bool {
	_, ok := c.WatchedEvents[WatchAny]
	return ok
}

// Watches reports whether this config watches t, honoring WatchAny.
func (c *ModuleConfig) Watches(t EventType) bool {
	if c.WatchesAny() {
		return true
	}
	_, ok := c.WatchedEvents[t]
	return ok
}

// HasFlag reports whether f is set.
func (c *ModuleConfig) HasFlag(f Flag) bool {
	_, ok := c.Flags[f]
	return ok
}

// EventCounts is the queue-depth portion of the status envelope.
type EventCounts struct {
	Incoming int
	Outgoing int
}

// Status is the snapshot a module exposes to its controller, matching the
// spec's status envelope: {events: {incoming, outgoing}, tasks, errored, running}.
type Status struct {
	Events  EventCounts
	Tasks   int
	Errored bool
	Running bool
}

// Finished reports the module-finished predicate from a status snapshot.
// Queue depths of zero are equivalent to "empty" for this purpose.
func (s Status) Finished() bool {
	return !s.Running && s.Events.Incoming == 0 && s.Events.Outgoing == 0
}
