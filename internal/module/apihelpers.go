// ============================================================================
// scancore Module Runtime - Optional API Helpers
// ============================================================================
//
// Package: internal/module
// File: apihelpers.go
// Purpose: The require_api_key / ping / request_with_fail_count helper
//          trio from spec.md §4.A and original_source/bbot/modules/base.py,
//          available to any concrete module's Setup but never invoked by
//          the runtime itself.
//
// ============================================================================

package module

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Pinger is an optional Callbacks extension. A module with a remote API
// implements it to give RequireAPIKey something concrete to probe; modules
// that don't need one simply never implement it, and Ping becomes a no-op,
// matching base.py's ping() default ("Requires the use of an assert
// statement" - left to the override).
type Pinger interface {
	Ping(ctx context.Context) error
}

// APIKey returns the module's configured "api_key" option, or "" if unset.
func (m *Module) APIKey() string {
	if m.cfg.Options == nil {
		return ""
	}
	if v, ok := m.cfg.Options["api_key"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AuthSecret returns the secret the module authenticates with (its API key,
// "" when none is configured), mirroring base.py's auth_secret property
// (getattr(self, "api_key", "")).
func (m *Module) AuthSecret() string {
	return m.APIKey()
}

// Ping is the default no-op health check; a module overrides it by
// implementing Pinger on its Callbacks. RequireAPIKey calls this after
// confirming AuthSecret is non-empty.
func (m *Module) Ping(ctx context.Context) error {
	if p, ok := m.callbacks.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// RequireAPIKey is a Setup helper that ensures the module is configured
// with an API key and that key actually works, mirroring base.py's
// require_api_key: no key set is a (soft) failure, a key that fails Ping is
// reported with the ping error, and a working key logs a HugeSuccess line
// before returning ok.
func (m *Module) RequireAPIKey(ctx context.Context) (ok bool, message string) {
	if m.AuthSecret() == "" {
		return false, "no API key set"
	}
	if err := m.Ping(ctx); err != nil {
		return false, fmt.Sprintf("error with API (%s)", strings.TrimSpace(err.Error()))
	}
	m.log.HugeSuccess("API is ready")
	return true, ""
}

// RequestWithFailCount performs req and tracks consecutive request
// failures, entering the module's error state once the count reaches
// FailedRequestAbortThreshold - the Go analogue of base.py's request_with_fail_count, used
// in conjunction with a module's own Ping/HandleEvent HTTP calls.
func (m *Module) RequestWithFailCount(req *http.Request) (*http.Response, error) {
	resp, err := m.httpClient.Do(req)

	m.mu.Lock()
	if err != nil {
		m.requestFailures++
	} else {
		m.requestFailures = 0
	}
	failures := m.requestFailures
	m.mu.Unlock()

	if m.cfg.FailedRequestAbortThreshold > 0 && failures >= m.cfg.FailedRequestAbortThreshold {
		m.SetErrorState(fmt.Sprintf("setting error state due to %d failed HTTP requests", failures))
	}
	return resp, err
}
