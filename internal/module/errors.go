// ============================================================================
// scancore Module Runtime - Error Taxonomy
// ============================================================================
//
// Package: internal/module
// File: errors.go
// Purpose: The error taxonomy from spec.md §7: validation errors (event
//          minting), wordlist errors (setup soft-fail), and the sentinels
//          used by the admission filter and lifecycle orchestration.
//
// ============================================================================

package module

import "errors"

// ValidationError is returned by MakeEvent when the requested event could
// not be minted (bad type, invalid scope distance, etc). Callers choose
// whether it propagates (raiseError) or is swallowed with a warning.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation error: " + e.Reason }

// WordlistError is the one error class that soft-fails setup instead of
// hard-failing it (spec.md §4.A Setup protocol, §7).
type WordlistError struct {
	Reason string
}

func (e *WordlistError) Error() string { return "wordlist error: " + e.Reason }

var (
	// ErrNotStarted is returned by Start if the module is in the error
	// state, e.g. because Setup did not succeed. Start does not check
	// whether Setup was called at all.
	ErrNotStarted = errors.New("module: setup did not succeed")
	// ErrAlreadyStarted is returned by Start if workers are already running.
	ErrAlreadyStarted = errors.New("module: already started")
)
