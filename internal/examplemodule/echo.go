// ============================================================================
// scancore Example Module - Echo/Discover Pair
// ============================================================================
//
// Package: internal/examplemodule
// File: echo.go
// Purpose: A minimal pair of modules exercising the full module execution
//          core end to end: discoverer watches every event type and emits
//          one DISCOVERED event per non-DISCOVERED input; reporter watches DISCOVERED and
//          tallies what it has seen, printed from Report. Stands in for the
//          teacher's cmd/demo crash-recovery walkthrough, adapted from
//          "prove WAL+snapshot survive a kill -9" to "prove one event routes
//          from producer to consumer and the scan reaches quiescence" -
//          this core carries no WAL, so that's the demonstration that fits.
//          Concrete scanning modules are out of scope (spec.md §1); this
//          exists only to give cmd/scancore something to run by default.
//
// ============================================================================

package examplemodule

import (
	"context"
	"fmt"
	"sync"

	"github.com/scancore/scancore/internal/module"
	"github.com/scancore/scancore/pkg/types"
)

const (
	SeedEventType       types.EventType = "SEED"
	DiscoveredEventType types.EventType = "DISCOVERED"
)

// Discoverer watches every event and, for each one that isn't already a
// DISCOVERED event, emits one DISCOVERED event tagged with the source.
type Discoverer struct {
	module.DefaultCallbacks

	mod *module.Module
}

func (d *Discoverer) BindModule(m *module.Module) { d.mod = m }

func (d *Discoverer) HandleEvent(ctx context.Context, e *types.Event) error {
	if e.Type == DiscoveredEventType {
		return nil
	}
	d.mod.EmitEvent(ctx, module.EventOpts{
		Type:          DiscoveredEventType,
		ScopeDistance: e.ScopeDistance,
		Source:        e,
		Priority:      e.Priority,
		Data:          types.RawData{"origin": string(e.Type)},
	}, module.EmitOptions{})
	return nil
}

// DiscoveryConfig is the declarative configuration for a Discoverer module.
func DiscoveryConfig(name string) types.ModuleConfig {
	return types.ModuleConfig{
		Name:             name,
		Type:             types.ModuleTypeScan,
		WatchedEvents:    map[types.EventType]struct{}{types.WatchAny: {}},
		Flags:            map[types.Flag]struct{}{types.FlagPassive: {}},
		MaxEventHandlers: 2,
		BatchSize:        1,
		Priority:         3,
	}
}

// Reporter tallies DISCOVERED events it receives and prints a summary from
// Report, which the engine calls once after the scan's global finish.
type Reporter struct {
	module.DefaultCallbacks

	mu    sync.Mutex
	count int
}

func (r *Reporter) HandleEvent(ctx context.Context, e *types.Event) error {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
	return nil
}

func (r *Reporter) Report(ctx context.Context) error {
	r.mu.Lock()
	count := r.count
	r.mu.Unlock()
	fmt.Printf("examplemodule: discovered %d event(s)\n", count)
	return nil
}

// ReporterConfig is the declarative configuration for a Reporter module.
func ReporterConfig(name string) types.ModuleConfig {
	return types.ModuleConfig{
		Name:             name,
		Type:             types.ModuleTypeOutput,
		WatchedEvents:    map[types.EventType]struct{}{DiscoveredEventType: {}},
		Flags:            map[types.Flag]struct{}{types.FlagPassive: {}},
		MaxEventHandlers: 1,
		BatchSize:        1,
		Priority:         3,
	}
}
