// ============================================================================
// scancore Module Runtime - Admission Filter
// ============================================================================
//
// Package: internal/module
// File: filter.go
// Purpose: Component B (spec.md §4.B): the two-stage admission gate.
//
//   precheck  - synchronous, producer-side, before enqueue. Rejects events
//               that would otherwise needlessly buffer.
//   postcheck - asynchronous, consumer-side, at dispatch time. Enforces
//               scope and the custom filter, which may depend on mutable
//               scan state and may itself suspend.
//
// Both return (accept bool, reason string); an empty reason means the
// rejection is silent (not worth logging - the "type not watched" case is
// the common one, per spec.md §4.B rule 3).
//
// ============================================================================

package module

import (
	"context"
	"strings"

	"github.com/scancore/scancore/pkg/types"
)

// DefaultSpeculationModuleName and DefaultHTTPFetchModuleName are the
// original's hardcoded module names ("speculate", "httpx") used by the
// CIDR-dedup and httpx-only admission rules. A module's ModuleConfig
// SpeculationModuleName/HTTPFetchModuleName fields override these if the
// scan renames its equivalents.
const (
	DefaultSpeculationModuleName = "speculate"
	DefaultHTTPFetchModuleName   = "httpx"
)

func (m *Module) speculationModuleName() string {
	if m.cfg.SpeculationModuleName != "" {
		return m.cfg.SpeculationModuleName
	}
	return DefaultSpeculationModuleName
}

func (m *Module) httpFetchModuleName() string {
	if m.cfg.HTTPFetchModuleName != "" {
		return m.cfg.HTTPFetchModuleName
	}
	return DefaultHTTPFetchModuleName
}

// precheck is the producer-side gate, run synchronously by QueueEvent
// before the event ever reaches the incoming queue.
func (m *Module) precheck(event *types.Event) (accept bool, reason string) {
	if event.Type == types.FinishedEvent {
		return true, ""
	}
	if m.Errored() {
		return false, "module is in error state"
	}
	if !m.cfg.Watches(event.Type) {
		// Silenced: this is the overwhelmingly common rejection reason.
		return false, ""
	}
	if m.cfg.TargetOnly && !event.HasTag(types.TagTarget) {
		return false, "it did not meet target_only filter criteria"
	}
	if strings.HasPrefix(string(event.Type), "URL") &&
		event.HasTag(types.TagHTTPXOnly) &&
		m.cfg.Name != m.httpFetchModuleName() {
		return false, "extension httpx-only"
	}

	// CIDR/address de-duplication: an IP_ADDRESS speculated from an
	// IP_RANGE is never admitted to a module that watches both types,
	// to avoid double port-scanning the CIDR and each enumerated host.
	if event.SourceType() == "IP_RANGE" &&
		event.Type == "IP_ADDRESS" &&
		event.Module == m.speculationModuleName() &&
		m.cfg.Name != m.speculationModuleName() &&
		m.cfg.Watches("IP_RANGE") && m.cfg.Watches("IP_ADDRESS") {
		return false, "module consumes IP ranges directly"
	}

	return true, ""
}

// maxScopeDistance implements spec.md §4.B rule 3's max_scope_distance
// computation.
func (m *Module) maxScopeDistance() int {
	if m.cfg.InScopeOnly || m.cfg.TargetOnly {
		return 0
	}
	d := m.controller.ScopeSearchDistance() + *m.cfg.ScopeDistanceModifier
	if d < 0 {
		return 0
	}
	return d
}

// postcheck is the consumer-side gate, run at dispatch time immediately
// before an event is handed to handle_event/handle_batch. It may suspend
// (filter_event can block), so it takes a context.
func (m *Module) postcheck(ctx context.Context, event *types.Event) (accept bool, reason string) {
	if event.Type == types.FinishedEvent {
		return true, ""
	}

	if m.cfg.HasFlag(types.FlagActive) && event.HasTag(types.TagTarget) && !m.controller.InWhitelist(event) {
		return false, "not in whitelist; active module"
	}

	if m.cfg.Type != types.ModuleTypeOutput {
		if m.cfg.InScopeOnly && event.ScopeDistance > 0 {
			return false, "it did not meet in_scope_only filter criteria"
		}
		if m.cfg.ScopeDistanceModifier != nil {
			if event.ScopeDistance < 0 {
				return false, "its scope_distance is invalid"
			}
			if event.ScopeDistance > m.maxScopeDistance() {
				return false, "its scope_distance exceeds the maximum allowed by the scan"
			}
		}
	}

	var filterOK bool
	var filterReason string
	m.controller.ACatch(ctx, m.cfg.Name+".filter_event", func(ctx context.Context) error {
		filterOK, filterReason = m.callbacks.FilterEvent(ctx, event)
		return nil
	})
	if !filterOK {
		msg := m.customFilterCriteriaMsg
		if filterReason != "" {
			msg += ": " + filterReason
		}
		return false, msg
	}

	if m.cfg.Type == types.ModuleTypeOutput && !event.StatsRecorded() {
		if event.MarkStatsRecorded() && !m.cfg.StatsExclude {
			m.controller.StatsProduced(event)
		}
	}

	return true, ""
}
