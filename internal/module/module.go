// ============================================================================
// scancore Module Runtime - Per-Module Lifecycle & Worker Loop
// ============================================================================
//
// Package: internal/module
// File: module.go
// Function: Component A of spec.md §4 - everything a module inherits: the
//           worker pool, batching, backpressure, and the setup/finish/
//           report/cleanup lifecycle.
//
// Worker model (spec.md §4.A):
//   Start() spawns exactly MaxEventHandlers worker goroutines, grounded on
//   the teacher's worker_pool.go Start/Stop pattern: a sync.WaitGroup
//   tracks them, and Stop waits for the group. Cleanup is a separate call
//   that runs the cleanup callbacks exactly once.
//
//   Each worker loop:
//     1. Backpressure gate: if outgoing is at capacity, wait on
//        eventDequeued.
//     2. Dispatch arm: single-event (BatchSize==1) or batch (BatchSize>1).
//     3. All user callbacks run through Controller.ACatch so a callback
//        panic or error never kills the worker loop (spec.md §7).
//
// ============================================================================

package module

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/scancore/scancore/internal/logging"
	"github.com/scancore/scancore/internal/queuepair"
	"github.com/scancore/scancore/pkg/types"
)

// defaultCustomFilterCriteriaMsg is the prefix the original prepends to
// filter_event rejection reasons.
const defaultCustomFilterCriteriaMsg = "it did not meet custom filter criteria"

// Module is the runtime state every scan module inherits: private queues,
// workers, admission filters, and the setup/finish/report/cleanup
// lifecycle (spec.md §3 "Module (instance state)").
type Module struct {
	cfg        types.ModuleConfig
	controller Controller
	callbacks  Callbacks
	log        *logging.Logger

	customFilterCriteriaMsg string

	mu        sync.Mutex
	errored   bool
	started   bool
	cleanedUp bool

	cleanupCallbacks []func(context.Context) error

	incoming *queuepair.Queue[*types.Event]
	outgoing *queuepair.Queue[OutgoingItem]

	eventReceived *queuepair.Broadcaster
	eventDequeued *queuepair.Broadcaster
	eventQueued   *queuepair.Broadcaster

	tasks taskCounter

	// requestFailures counts consecutive failures seen by
	// RequestWithFailCount (spec.md §4.A / SPEC_FULL.md require_api_key
	// family); reset to 0 on any successful request.
	requestFailures int
	httpClient      *http.Client

	workersWG sync.WaitGroup
}

// New constructs a Module. cfg is validated lightly (MaxEventHandlers and
// BatchSize are floored at 1; Priority is clamped).
func New(cfg types.ModuleConfig, controller Controller, callbacks Callbacks, log *logging.Logger) *Module {
	if cfg.MaxEventHandlers < 1 {
		cfg.MaxEventHandlers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	cfg.Priority = types.ClampPriority(cfg.Priority)
	if log == nil {
		log = logging.New(nil)
	}
	return &Module{
		cfg:                     cfg,
		controller:              controller,
		callbacks:               callbacks,
		log:                     log.With("module", cfg.Name),
		customFilterCriteriaMsg: defaultCustomFilterCriteriaMsg,
		incoming:                queuepair.New[*types.Event](),
		outgoing:                queuepair.New[OutgoingItem](),
		eventReceived:           queuepair.NewBroadcaster(),
		eventDequeued:           queuepair.NewBroadcaster(),
		eventQueued:             queuepair.NewBroadcaster(),
		httpClient:              http.DefaultClient,
	}
}

// SetHTTPClient overrides the client RequestWithFailCount uses. Intended to
// be called once, from a module's Setup, to install a client with
// domain-specific timeouts/transport.
func (m *Module) SetHTTPClient(client *http.Client) {
	if client != nil {
		m.httpClient = client
	}
}

// Name returns the module's declared name.
func (m *Module) Name() string { return m.cfg.Name }

// Config returns the module's declarative configuration.
func (m *Module) Config() types.ModuleConfig { return m.cfg }

// Errored reports the sticky error-state flag (spec.md §3 invariant 1:
// monotonic, never reverts to false).
func (m *Module) Errored() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errored
}

// Running reports whether the module currently has any in-flight
// callback invocations.
func (m *Module) Running() bool {
	return m.tasks.value() > 0
}

// Finished reports spec.md §4.E's quiescence predicate for this module:
// not running, and both queues empty.
func (m *Module) Finished() bool {
	return !m.Running() && m.incoming.Len() == 0 && m.outgoing.Len() == 0
}

// Status returns the status envelope spec.md §6 defines.
func (m *Module) Status() types.Status {
	return types.Status{
		Events: types.EventCounts{
			Incoming: m.incoming.Len(),
			Outgoing: m.outgoing.Len(),
		},
		Tasks:   m.tasks.value(),
		Errored: m.Errored(),
		Running: m.Running(),
	}
}

// RegisterCleanupCallback adds an additional callback to run alongside
// Cleanup, in registration order, after Cleanup itself (spec.md §3
// invariant 2).
func (m *Module) RegisterCleanupCallback(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCallbacks = append(m.cleanupCallbacks, fn)
}

// Setup runs the user Setup callback under the error-catching/WordlistError
// mapping spec.md §4.A describes, and enters the error state on any
// failure. It does not start workers; the caller starts them only on
// SetupOK.
func (m *Module) Setup(ctx context.Context) SetupOutcome {
	m.log.Debug("setting up module")
	outcome := m.runSetupSafely(ctx)
	m.log.Debug("finished setting up module", "result", outcome.Result)
	return outcome
}

func (m *Module) runSetupSafely(ctx context.Context) (outcome SetupOutcome) {
	defer func() {
		if r := recover(); r != nil {
			m.SetErrorState(panicMessage(r))
			outcome = SetupOutcome{Result: SetupHardFail, Message: panicMessage(r)}
		}
	}()

	result, err := m.callbacks.Setup(ctx)
	if err != nil {
		m.SetErrorState(err.Error())
		if isWordlistError(err) {
			return SetupOutcome{Result: SetupSoftFail, Message: err.Error()}
		}
		return SetupOutcome{Result: SetupHardFail, Message: err.Error()}
	}
	if result.Result != SetupOK {
		m.SetErrorState(result.Message)
	}
	return result
}

func isWordlistError(err error) bool {
	_, ok := err.(*WordlistError)
	return ok
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "panic: " + toString(r)
}

func toString(v any) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return "unknown panic value"
}

// Start spawns exactly MaxEventHandlers worker goroutines. Calling Start
// twice, or calling it on an errored module, is an error.
func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.errored {
		m.mu.Unlock()
		return ErrNotStarted
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.workersWG.Add(m.cfg.MaxEventHandlers)
	for i := 0; i < m.cfg.MaxEventHandlers; i++ {
		go m.workerLoop(ctx)
	}
	return nil
}

// Stop waits for all worker goroutines to exit. Callers typically arrange
// for ctx (or Controller.Stopping()) to signal shutdown before calling
// Stop, since workers only exit at loop-top checks or a disabled queue -
// in-flight callbacks are never preempted (spec.md §5 Cancellation).
func (m *Module) Stop() {
	m.workersWG.Wait()
}

// workerLoop is one of MaxEventHandlers concurrent worker goroutines,
// implementing spec.md §4.A's backpressure gate + dispatch arm.
func (m *Module) workerLoop(ctx context.Context) {
	defer m.workersWG.Done()
	for {
		if m.controller.Stopping() {
			return
		}

		if m.cfg.QSize > 0 {
			if !m.awaitBackpressureRelief(ctx) {
				return
			}
		}

		if m.cfg.BatchSize > 1 {
			submitted := m.handleBatch(ctx)
			if !submitted {
				if m.incoming.Disabled() {
					m.log.Debug("event queue is in bad state")
					return
				}
				if err := m.eventReceived.Wait(ctx); err != nil {
					return
				}
			}
		} else {
			if !m.dispatchOneEvent(ctx) {
				return
			}
		}
	}
}

// awaitBackpressureRelief blocks while the outgoing queue is saturated.
// Returns false if the context/scan stop signal fired while waiting.
func (m *Module) awaitBackpressureRelief(ctx context.Context) bool {
	for m.outgoing.Len() >= m.cfg.QSize {
		if m.controller.Stopping() {
			return false
		}
		if err := m.eventDequeued.Wait(ctx); err != nil {
			return false
		}
	}
	return true
}

// dispatchOneEvent implements the single-event arm (BatchSize == 1):
// blocking-dequeue one event, post-check it, and hand it to finish() or
// handle_event(). Returns false when the worker should exit (queue
// disabled, or the wait was cancelled).
func (m *Module) dispatchOneEvent(ctx context.Context) bool {
	if m.incoming.Disabled() {
		m.log.Debug("event queue is in bad state")
		return false
	}
	event, ok := m.incoming.TryPop()
	if !ok {
		if err := m.eventReceived.Wait(ctx); err != nil {
			return false
		}
		return true
	}

	accept, reason := m.postcheck(ctx, event)
	if !accept {
		if reason != "" {
			m.log.Debug("not accepting event", "reason", reason)
		}
		return true
	}

	if event.Type == types.FinishedEvent {
		m.runTask(ctx, m.cfg.Name+".finish", func(ctx context.Context) error {
			return m.callbacks.Finish(ctx)
		})
	} else {
		if !m.cfg.StatsExclude {
			m.controller.StatsConsumed(event, m.cfg.Name)
		}
		m.runTask(ctx, m.cfg.Name+".handle_event", func(ctx context.Context) error {
			return m.callbacks.HandleEvent(ctx, event)
		})
	}
	return true
}

// handleBatch implements the batch arm: assemble a batch (waiting up to
// BatchWait for it to fill), hand it to handle_batch(), then call finish()
// if a FINISHED sentinel was observed. Returns whether a non-empty batch
// was submitted.
func (m *Module) handleBatch(ctx context.Context) bool {
	events, finish := m.eventsWaiting(ctx)
	if m.Errored() {
		return false
	}

	submitted := false
	if len(events) > 0 {
		submitted = true
		m.log.Debug("handling batch", "size", len(events))
		batch := events
		m.runTask(ctx, m.cfg.Name+".handle_batch", func(ctx context.Context) error {
			return m.callbacks.HandleBatch(ctx, batch)
		})
	}

	if finish {
		m.runTask(ctx, m.cfg.Name+".finish", func(ctx context.Context) error {
			return m.callbacks.Finish(ctx)
		})
	}
	// The idle "call report() when the batch was empty and batch_wait
	// elapsed" branch from the original is intentionally not implemented
	// here - see spec.md §9 Open Question resolution. report() is invoked
	// once by the scan engine after global finish instead.

	return submitted
}

// eventsWaiting assembles a batch: it drains whatever is immediately
// available, and if that isn't yet BatchSize and no FINISHED sentinel has
// been seen, waits (in slices, up to BatchWait total) for more to arrive
// before returning what it has. This mirrors the original's
// events_waiting, which blocks for at most batch_wait seconds accumulating
// a batch. Caps the batch at BatchSize+1 (one-over is deliberate, to
// detect saturation).
func (m *Module) eventsWaiting(ctx context.Context) (events []*types.Event, finish bool) {
	limit := m.cfg.BatchSize + 1
	deadline := time.Now().Add(time.Duration(m.cfg.BatchWait * float64(time.Second)))

	for {
		drained := m.incoming.DrainUpTo(limit - len(events))
		for _, event := range drained {
			accept, reason := m.postcheck(ctx, event)
			if !accept {
				if reason != "" {
					m.log.Debug("not accepting event", "reason", reason)
				}
				continue
			}
			if event.Type == types.FinishedEvent {
				finish = true
				continue
			}
			events = append(events, event)
			if !m.cfg.StatsExclude {
				m.controller.StatsConsumed(event, m.cfg.Name)
			}
		}

		if finish || len(events) >= m.cfg.BatchSize || m.incoming.Disabled() {
			return events, finish
		}
		if !time.Now().Before(deadline) {
			return events, finish
		}

		waitCtx, cancel := context.WithDeadline(ctx, deadline)
		err := m.eventReceived.Wait(waitCtx)
		cancel()
		if err != nil {
			return events, finish
		}
	}
}

// runTask wraps a user callback in the module's task counter and the
// controller's error-catching context, per spec.md §4.E/§7.
func (m *Module) runTask(ctx context.Context, label string, fn func(context.Context) error) {
	release := m.tasks.acquire()
	defer release()
	m.controller.ACatch(ctx, label, fn)
}

// QueueEvent admits event into the incoming queue after a successful
// precheck, then wakes a worker. Idempotent against a disabled queue
// (spec.md §4.C): silently returns if the queue has been nulled/disabled.
func (m *Module) QueueEvent(event *types.Event) {
	if m.incoming.Disabled() {
		m.log.Debug("not in an acceptable state to queue incoming event")
		return
	}
	accept, reason := m.precheck(event)
	if !accept {
		if reason != "" {
			m.log.Debug("not accepting event", "reason", reason)
		}
		return
	}
	if m.incoming.Push(event, event.Priority) {
		m.eventReceived.Notify()
	}
}

// MakeEvent mints a new event via the controller, attributing it to this
// module if unattributed. raiseError controls whether a *ValidationError
// propagates to the caller or is logged and swallowed.
func (m *Module) MakeEvent(ctx context.Context, opts EventOpts, raiseError bool) (*types.Event, error) {
	event, err := m.controller.MakeEvent(ctx, opts)
	if err != nil {
		if raiseError {
			return nil, err
		}
		m.log.Warning(err, "failed to make event")
		return nil, nil
	}
	if event.Module == "" {
		event.Module = m.cfg.Name
	}
	return event, nil
}

// EmitEvent mints an event and queues it on the outgoing queue, splitting
// emit-only options (on_success_callback, abort_if, quick) from the
// minting parameters, matching spec.md §6 emit_event.
func (m *Module) EmitEvent(ctx context.Context, opts EventOpts, emitOpts EmitOptions) {
	event, err := m.MakeEvent(ctx, opts, false)
	if err != nil || event == nil {
		return
	}
	m.QueueOutgoingEvent(event, emitOpts)
}

// QueueOutgoingEvent pushes (event, options) onto the outgoing queue and
// wakes anyone waiting on WaitEventQueued (the scan engine's quiescence
// sampler, which must not declare a module finished while an emit is
// mid-flight). Idempotent against a disabled outgoing queue.
func (m *Module) QueueOutgoingEvent(event *types.Event, opts EmitOptions) {
	if !m.outgoing.Push(OutgoingItem{Event: event, Options: opts}, event.Priority) {
		m.log.Debug("not in an acceptable state to queue outgoing event")
		return
	}
	m.eventQueued.Notify()
}

// WaitEventQueued blocks until the next outgoing event is queued, or ctx
// ends. Used by the scan engine's two-phase quiescence check (spec.md
// §4.E) to re-sample before declaring a module finished.
func (m *Module) WaitEventQueued(ctx context.Context) error {
	return m.eventQueued.Wait(ctx)
}

// DequeueOutgoingEvent is the controller-facing drain primitive: it
// removes one item from the outgoing queue and notifies eventDequeued so
// any backpressure-blocked worker can proceed.
func (m *Module) DequeueOutgoingEvent() (OutgoingItem, bool) {
	item, ok := m.outgoing.TryPop()
	if ok {
		m.eventDequeued.Notify()
	}
	return item, ok
}

// SetErrorState is the idempotent quarantine entry point (spec.md §4.A):
// on first call it marks errored, synchronously drains and disables the
// incoming queue. The outgoing queue is left alive so pending outputs can
// still be harvested.
func (m *Module) SetErrorState(message string) {
	m.mu.Lock()
	if m.errored {
		m.mu.Unlock()
		return
	}
	m.errored = true
	m.mu.Unlock()

	if message != "" {
		m.log.Warning(nil, message)
	}
	m.log.Debug("setting error state for module")
	m.incoming.Disable()
}

// Cleanup runs Cleanup and then every registered cleanup callback, in
// registration order, exactly once (spec.md §3 invariant 2). Errors are
// logged and swallowed; cleanup is best-effort (spec.md §7).
func (m *Module) Cleanup(ctx context.Context) {
	m.mu.Lock()
	if m.cleanedUp {
		m.mu.Unlock()
		return
	}
	m.cleanedUp = true
	callbacks := append([]func(context.Context) error{m.callbacks.Cleanup}, m.cleanupCallbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		if cb == nil {
			continue
		}
		release := m.tasks.acquire()
		m.controller.ACatch(ctx, m.cfg.Name+".cleanup", cb)
		release()
	}
}

// Finish invokes the user Finish callback under the task counter and
// error-catching context. May be called multiple times (spec.md §3).
func (m *Module) Finish(ctx context.Context) {
	m.runTask(ctx, m.cfg.Name+".finish", m.callbacks.Finish)
}

// Report invokes the user Report callback under the task counter and
// error-catching context. It has no once-guard of its own; the scan engine
// calls it once per started module after global finish (spec.md §9
// resolution).
func (m *Module) Report(ctx context.Context) {
	m.runTask(ctx, m.cfg.Name+".report", m.callbacks.Report)
}
