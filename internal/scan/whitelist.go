// ============================================================================
// scancore Scan Controller - Whitelist
// ============================================================================
//
// Package: internal/scan
// File: whitelist.go
// Purpose: The active-module post-check rule (spec.md §4.B rule 4) needs a
//          whitelist membership check. The concrete matcher (CIDR/domain
//          scope tree) is scan-bootstrap territory and out of scope per
//          spec.md §1; this package only defines the seam a real scan wires
//          a matcher into, plus an allow-all default for tests and for
//          Engines that never populate one.
//
// ============================================================================

package scan

import "github.com/scancore/scancore/pkg/types"

// WhitelistChecker decides whether an event's target falls within the scan's
// configured whitelist.
type WhitelistChecker interface {
	InScope(e *types.Event) bool
}

// AllowAllWhitelist treats every event as in-whitelist. The zero-config
// default; a real scan replaces it with a CIDR/domain scope matcher.
type AllowAllWhitelist struct{}

func (AllowAllWhitelist) InScope(e *types.Event) bool { return true }

var _ WhitelistChecker = AllowAllWhitelist{}
