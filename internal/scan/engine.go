// ============================================================================
// scancore Scan Controller - In-Process Default Engine
// ============================================================================
//
// Package: internal/scan
// File: engine.go
// Purpose: Component D (spec.md §4.D): the Scan Controller Interface every
//          Module depends on (internal/module.Controller), plus the
//          in-process default implementation - a minimal but real
//          quiescence-detecting router. "Global scan bootstrap" (domain
//          event taxonomy, target/whitelist loading, concrete modules) is
//          out of scope per spec.md §1, but some concrete Controller must
//          exist for the module runtime to be testable and runnable from
//          cmd/scancore, so Engine wires internal/module, internal/queuepair,
//          internal/dedup and internal/metrics end to end.
//
// Routing: Engine has no domain knowledge of event types; it forwards an
// outgoing event from one module to every other registered module whose
// WatchedEvents matches the event's type (spec.md §4.B rule 3's "watches"
// predicate), skipping the producing module itself. This is deliberately
// the simplest thing that exercises the admission filter and the module
// runtime for real, not a routing/priority policy engine.
//
// Quiescence: spec.md §5/§4.E require a scan to declare itself finished
// only after a two-phase sample-then-resample check, since a module can
// emit a fresh event in the narrow window between "all queues empty" and
// "no callback about to run". awaitQuiescence samples Finished() across
// every module, then re-samples by racing a short resample window against
// each module's WaitEventQueued - if anything fires, at least one module
// produced output during the window and the scan is not actually settled.
//
// ============================================================================

package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/scancore/scancore/internal/dedup"
	"github.com/scancore/scancore/internal/logging"
	"github.com/scancore/scancore/internal/metrics"
	"github.com/scancore/scancore/internal/module"
	"github.com/scancore/scancore/pkg/types"
)

// Controller is the full interface internal/module.Controller narrows down
// to what a Module needs (see internal/module/controller.go); Engine
// satisfies both. Kept here as documentation of the wider surface spec.md
// §4.D describes - scan-level callers use the concrete *Engine directly for
// the rest (RegisterModule, Seed, Run).
type Controller interface {
	module.Controller
	Whitelist() WhitelistChecker
	Stats() StatsSink
	Dedup() dedup.Deduplicator
}

// EngineConfig is the scan-wide configuration an Engine is constructed
// with - the handful of cross-module settings spec.md §4.D names
// (scope_search_distance, whitelist) plus the two-phase quiescence tuning
// knobs, which spec.md leaves unspecified as an Open Question (see
// DESIGN.md).
type EngineConfig struct {
	ScopeSearchDistance int
	Whitelist           WhitelistChecker

	// PollInterval is how often awaitQuiescence re-checks Finished() across
	// all modules. ResampleWindow is how long it then races against
	// WaitEventQueued before trusting the sample. Zero values fall back to
	// DefaultPollInterval / DefaultResampleWindow.
	PollInterval   time.Duration
	ResampleWindow time.Duration
}

const (
	DefaultPollInterval   = 20 * time.Millisecond
	DefaultResampleWindow = 50 * time.Millisecond
)

// Engine is the in-process default Scan Controller.
type Engine struct {
	cfg EngineConfig
	log *logging.Logger

	metrics *metrics.Collector
	dedup   dedup.Deduplicator
	stats   *metricsStatsSink

	mu      sync.RWMutex
	modules map[string]*module.Module
	order   []string // registration order, for deterministic Report/Cleanup

	stopping boolFlag

	routersWG sync.WaitGroup
	statsWG   sync.WaitGroup

	quarantinedSeen map[string]bool
}

// boolFlag is a tiny mutex-guarded bool, safe for concurrent get/set.
type boolFlag struct {
	mu sync.RWMutex
	v  bool
}

func (f *boolFlag) set(v bool) {
	f.mu.Lock()
	f.v = v
	f.mu.Unlock()
}

func (f *boolFlag) get() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.v
}

// NewEngine constructs an Engine. A nil metrics Collector or Deduplicator is
// accepted: metrics become no-ops and dedup is skipped entirely (every
// fingerprint is treated as novel).
func NewEngine(cfg EngineConfig, mc *metrics.Collector, dd dedup.Deduplicator, log *logging.Logger) *Engine {
	if cfg.Whitelist == nil {
		cfg.Whitelist = AllowAllWhitelist{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ResampleWindow <= 0 {
		cfg.ResampleWindow = DefaultResampleWindow
	}
	if log == nil {
		log = logging.New(nil)
	}
	return &Engine{
		cfg:             cfg,
		log:             log.With("component", "scan.Engine"),
		metrics:         mc,
		dedup:           dd,
		stats:           newMetricsStatsSink(mc),
		modules:         make(map[string]*module.Module),
		quarantinedSeen: make(map[string]bool),
	}
}

// RegisterModule adds mod to the scan. Must be called before Run.
func (e *Engine) RegisterModule(mod *module.Module) {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := mod.Name()
	if _, exists := e.modules[name]; exists {
		return
	}
	e.modules[name] = mod
	e.order = append(e.order, name)
}

func (e *Engine) moduleSnapshot() []*module.Module {
	e.mu.RLock()
	defer e.mu.RUnlock()
	mods := make([]*module.Module, 0, len(e.order))
	for _, name := range e.order {
		mods = append(mods, e.modules[name])
	}
	return mods
}

// Seed injects an initial event into every registered module whose
// WatchedEvents matches it - the entry point for the scan's root/target
// events, which have no producing module.
func (e *Engine) Seed(ev *types.Event) {
	e.dispatch(ev)
}

// --- module.Controller ------------------------------------------------------

// MakeEvent mints a new Event, validating the two invariants spec.md §3/§7
// assign to event construction: a non-empty Type and a non-negative
// ScopeDistance.
func (e *Engine) MakeEvent(ctx context.Context, opts module.EventOpts) (*types.Event, error) {
	if opts.Type == "" {
		return nil, &module.ValidationError{Reason: "event type is required"}
	}
	if opts.ScopeDistance < 0 {
		return nil, &module.ValidationError{Reason: "scope_distance must be >= 0"}
	}
	ev := &types.Event{
		Type:          opts.Type,
		ScopeDistance: opts.ScopeDistance,
		Tags:          opts.Tags,
		Source:        opts.Source,
		Module:        opts.Module,
		Data:          opts.Data,
		Priority:      types.ClampPriority(opts.Priority),
	}
	ev.Fingerprint = fingerprintFor(ev)
	return ev, nil
}

// fingerprintFor computes the dedup key for ev. The concrete event taxonomy
// is out of scope (spec.md §1), so this is deliberately generic: type,
// producing module, and a stringified payload. Modules with a richer
// notion of identity can still suppress dedup per-event by leaving
// Data/Module such that two logically-identical events collide, which is
// the same best-effort contract the bloom filter itself gives (spec.md §1
// Non-goals: at-least-once, not exactly-once).
func fingerprintFor(ev *types.Event) string {
	var b strings.Builder
	b.WriteString(string(ev.Type))
	b.WriteByte('|')
	b.WriteString(ev.Module)
	if ev.Data != nil {
		b.WriteByte('|')
		b.WriteString(ev.Data.Kind())
		fmt.Fprintf(&b, "|%v", ev.Data)
	}
	return b.String()
}

// Stopping reports whether the scan has begun a global stop.
func (e *Engine) Stopping() bool { return e.stopping.get() }

// InWhitelist delegates to the configured WhitelistChecker.
func (e *Engine) InWhitelist(ev *types.Event) bool { return e.cfg.Whitelist.InScope(ev) }

// ScopeSearchDistance returns the scan's configured search distance.
func (e *Engine) ScopeSearchDistance() int { return e.cfg.ScopeSearchDistance }

// StatsConsumed forwards to the stats sink.
func (e *Engine) StatsConsumed(ev *types.Event, moduleName string) { e.stats.Consumed(ev, moduleName) }

// StatsProduced forwards to the stats sink.
func (e *Engine) StatsProduced(ev *types.Event) { e.stats.Produced(ev) }

// ACatch runs fn, recovering a panic or capturing a returned error, logging
// either at warning level with label as context, and never propagates it -
// the Go analogue of scan.acatch(context=label). Also observes the
// callback's wall time against internal/metrics, keyed by (module, task)
// parsed from label ("<module>.<task>").
func (e *Engine) ACatch(ctx context.Context, label string, fn func(context.Context) error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.Warning(nil, "panic recovered", "label", label, "panic", r)
		}
		e.observeDuration(label, time.Since(start))
	}()
	if err := fn(ctx); err != nil {
		e.log.Warning(err, "callback returned error", "label", label)
	}
}

func (e *Engine) observeDuration(label string, d time.Duration) {
	if e.metrics == nil {
		return
	}
	moduleName, task, ok := strings.Cut(label, ".")
	if !ok {
		moduleName, task = label, "unknown"
	}
	e.metrics.ObserveTaskDuration(moduleName, task, d.Seconds())
}

// Whitelist exposes the configured checker (scan.Controller's wider surface).
func (e *Engine) Whitelist() WhitelistChecker { return e.cfg.Whitelist }

// Stats exposes the stats sink (scan.Controller's wider surface).
func (e *Engine) Stats() StatsSink { return e.stats }

// Dedup exposes the configured deduplicator, or nil if dedup was disabled.
func (e *Engine) Dedup() dedup.Deduplicator { return e.dedup }

var _ module.Controller = (*Engine)(nil)
var _ Controller = (*Engine)(nil)

// --- routing ------------------------------------------------------------

// dispatch forwards ev to every registered module whose configuration
// watches its type, skipping the producing module. A duplicate fingerprint
// (per the configured Deduplicator) is dropped before it reaches any
// module's precheck, matching spec.md §1's at-least-once + downstream
// fingerprint dedup contract.
func (e *Engine) dispatch(ev *types.Event) {
	if ev.Fingerprint != "" && e.dedup != nil && e.dedup.IsDuplicate(ev.Fingerprint) {
		if e.metrics != nil {
			e.metrics.RecordRejected(ev.Module, "dedup")
		}
		e.log.Debug("dropping duplicate event", "type", ev.Type, "fingerprint", ev.Fingerprint)
		return
	}

	for _, target := range e.moduleSnapshot() {
		if target.Name() == ev.Module {
			continue
		}
		if !target.Config().Watches(ev.Type) {
			continue
		}
		target.QueueEvent(ev)
	}
}

// routeOutgoing drains mod's outgoing queue for the lifetime of ctx,
// dispatching each item to the rest of the scan. It blocks on
// WaitEventQueued when the outgoing queue is empty rather than busy-polling,
// and exits once ctx ends (Engine.Run cancels its internal context once the
// finish/report/cleanup sequence begins) or the scan enters Stopping.
func (e *Engine) routeOutgoing(ctx context.Context, mod *module.Module) {
	defer e.routersWG.Done()
	for {
		if e.Stopping() && mod.Finished() {
			return
		}
		item, ok := mod.DequeueOutgoingEvent()
		if !ok {
			if err := mod.WaitEventQueued(ctx); err != nil {
				return
			}
			continue
		}
		e.dispatch(item.Event)
		if item.Options.OnSuccessCallback != nil {
			item.Options.OnSuccessCallback(item.Event)
		}
	}
}

// --- quiescence -----------------------------------------------------------

// allFinished reports whether every registered module currently satisfies
// Module.Finished().
func (e *Engine) allFinished() bool {
	for _, m := range e.moduleSnapshot() {
		if !m.Finished() {
			return false
		}
	}
	return true
}

// awaitQuiescence blocks until every module is finished and stays finished
// across a resample window, or ctx ends (in which case it returns false).
func (e *Engine) awaitQuiescence(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		if e.allFinished() && e.resampleStillFinished(ctx) {
			return true
		}
		select {
		case <-time.After(e.cfg.PollInterval):
		case <-ctx.Done():
			return false
		}
	}
}

// resampleStillFinished races a bounded window against every module's
// WaitEventQueued. If any fires, a module produced output during the
// window and the prior "all finished" sample was stale; otherwise it
// re-checks Finished() once more before trusting quiescence.
func (e *Engine) resampleStillFinished(ctx context.Context) bool {
	mods := e.moduleSnapshot()
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.ResampleWindow)
	defer cancel()

	produced := make(chan struct{}, len(mods))
	var wg sync.WaitGroup
	for _, m := range mods {
		wg.Add(1)
		go func(m *module.Module) {
			defer wg.Done()
			if err := m.WaitEventQueued(waitCtx); err == nil {
				select {
				case produced <- struct{}{}:
				default:
				}
			}
		}(m)
	}
	wg.Wait()

	select {
	case <-produced:
		return false
	default:
	}
	return e.allFinished()
}

// --- lifecycle --------------------------------------------------------------

// Run drives one full scan lifecycle: Setup + Start every module, route
// events between them until the scan quiesces, broadcast a global FINISHED
// sentinel, wait for finish-handling to settle, then Report every started
// module once and Cleanup every registered module exactly once (spec.md §9's
// report-trigger resolution; see DESIGN.md). Run blocks until the scan completes or ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if e.dedup != nil {
		e.dedup.Start(runCtx)
		defer e.dedup.Stop()
	}

	e.statsWG.Add(1)
	go e.metricsLoop(runCtx)

	mods := e.startAll(runCtx)

	// Stopping() is the cooperative abort flag workers check at the top of
	// every loop iteration (spec.md §5) - it must stay false until after the
	// FINISHED round is fully processed, or workers would exit before ever
	// draining the FINISHED sentinel we are about to queue.
	e.awaitQuiescence(runCtx)

	finished := &types.Event{Type: types.FinishedEvent, Priority: 1}
	for _, m := range mods {
		m.QueueEvent(finished)
	}
	e.awaitQuiescence(runCtx)

	e.stopping.set(true)
	cancel() // unblock any worker/router still idling on a broadcaster wait
	for _, m := range mods {
		m.Stop()
	}
	e.routersWG.Wait()
	e.statsWG.Wait()

	for _, m := range mods {
		m.Report(ctx)
	}
	// Cleanup runs on every registered module, not just the ones that
	// started: spec.md §8 scenario 6 requires cleanup() to run once even
	// for a module that soft/hard-failed setup and never started workers
	// (invariant 2: "cleanup runs exactly once", not "exactly once for
	// modules that started").
	for _, m := range e.moduleSnapshot() {
		m.Cleanup(ctx)
	}
	return nil
}

// startAll runs Setup on every registered module and Start()s the ones that
// succeeded (SetupOK), logging and skipping the rest. Returns the modules
// that are actually running, in registration order.
func (e *Engine) startAll(ctx context.Context) []*module.Module {
	var running []*module.Module
	for _, m := range e.moduleSnapshot() {
		outcome := m.Setup(ctx)
		switch outcome.Result {
		case module.SetupHardFail:
			e.log.Error(nil, "module hard-failed setup, excluding from scan", "module", m.Name(), "message", outcome.Message)
			continue
		case module.SetupSoftFail:
			e.log.Warning(nil, "module soft-failed setup, excluding from scan", "module", m.Name(), "message", outcome.Message)
			continue
		}
		if err := m.Start(ctx); err != nil {
			e.log.Error(err, "failed to start module", "module", m.Name())
			continue
		}
		running = append(running, m)
		e.routersWG.Add(1)
		go e.routeOutgoing(ctx, m)
	}
	return running
}

// metricsLoop periodically pushes each module's queue depth into
// internal/metrics and records a quarantine event the first time a module
// transitions into the errored state, mirroring the teacher's
// controller.go snapshotLoop (periodic status -> metrics push) adapted to
// per-module status instead of a single job queue's.
func (e *Engine) metricsLoop(ctx context.Context) {
	defer e.statsWG.Done()
	if e.metrics == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.reportModuleMetrics()
		case <-ctx.Done():
			return
		}
	}
}

// reportModuleMetrics runs only on the metricsLoop goroutine, so
// quarantinedSeen needs no locking of its own.
func (e *Engine) reportModuleMetrics() {
	for _, m := range e.moduleSnapshot() {
		status := m.Status()
		e.metrics.SetQueueDepth(m.Name(), "incoming", status.Events.Incoming)
		e.metrics.SetQueueDepth(m.Name(), "outgoing", status.Events.Outgoing)

		if status.Errored && !e.quarantinedSeen[m.Name()] {
			e.quarantinedSeen[m.Name()] = true
			e.metrics.RecordQuarantine(m.Name())
		}
	}
}
