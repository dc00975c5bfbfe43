package module

import (
	"context"
	"sync"

	"github.com/scancore/scancore/internal/logging"
	"github.com/scancore/scancore/pkg/types"
)

// fakeController is a minimal, test-only Controller implementation
// modeled on what internal/scan.Engine provides in production.
type fakeController struct {
	mu sync.Mutex

	stopping      bool
	scopeDistance int
	whitelistFn   func(*types.Event) bool

	consumed []string
	produced []*types.Event
}

func newFakeController() *fakeController {
	return &fakeController{whitelistFn: func(*types.Event) bool { return true }}
}

func (c *fakeController) MakeEvent(ctx context.Context, opts EventOpts) (*types.Event, error) {
	if opts.Type == "" {
		return nil, &ValidationError{Reason: "event type is required"}
	}
	if opts.ScopeDistance < 0 {
		return nil, &ValidationError{Reason: "scope distance must be non-negative"}
	}
	return &types.Event{
		Type:          opts.Type,
		ScopeDistance: opts.ScopeDistance,
		Tags:          opts.Tags,
		Source:        opts.Source,
		Module:        opts.Module,
		Data:          opts.Data,
		Priority:      types.ClampPriority(opts.Priority),
	}, nil
}

func (c *fakeController) Stopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

func (c *fakeController) setStopping(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopping = v
}

func (c *fakeController) InWhitelist(e *types.Event) bool { return c.whitelistFn(e) }

func (c *fakeController) ScopeSearchDistance() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scopeDistance
}

func (c *fakeController) StatsConsumed(e *types.Event, moduleName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumed = append(c.consumed, moduleName+":"+string(e.Type))
}

func (c *fakeController) StatsProduced(e *types.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.produced = append(c.produced, e)
}

func (c *fakeController) ACatch(ctx context.Context, label string, fn func(context.Context) error) {
	defer func() { recover() }()
	_ = fn(ctx)
}

func (c *fakeController) consumedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.consumed)
}

// fakeCallbacks is a test-only Callbacks implementation recording every
// invocation, with pluggable hooks for the scenarios that need one.
type fakeCallbacks struct {
	DefaultCallbacks

	mu sync.Mutex

	setupResult SetupOutcome
	setupErr    error

	handleEventFn func(ctx context.Context, e *types.Event) error
	handleBatchFn func(ctx context.Context, events []*types.Event) error
	filterEventFn func(ctx context.Context, e *types.Event) (bool, string)

	handleEventCalls [][]*types.Event // each call wrapped in a single-elem slice
	handleBatchCalls [][]*types.Event
	finishCalls      int
	reportCalls      int
	cleanupCalls     int
}

func newFakeCallbacks() *fakeCallbacks {
	return &fakeCallbacks{setupResult: SetupOutcome{Result: SetupOK}}
}

func (f *fakeCallbacks) Setup(ctx context.Context) (SetupOutcome, error) {
	return f.setupResult, f.setupErr
}

func (f *fakeCallbacks) HandleEvent(ctx context.Context, event *types.Event) error {
	f.mu.Lock()
	f.handleEventCalls = append(f.handleEventCalls, []*types.Event{event})
	f.mu.Unlock()
	if f.handleEventFn != nil {
		return f.handleEventFn(ctx, event)
	}
	return nil
}

func (f *fakeCallbacks) HandleBatch(ctx context.Context, events []*types.Event) error {
	f.mu.Lock()
	f.handleBatchCalls = append(f.handleBatchCalls, events)
	f.mu.Unlock()
	if f.handleBatchFn != nil {
		return f.handleBatchFn(ctx, events)
	}
	return nil
}

func (f *fakeCallbacks) FilterEvent(ctx context.Context, event *types.Event) (bool, string) {
	if f.filterEventFn != nil {
		return f.filterEventFn(ctx, event)
	}
	return true, ""
}

func (f *fakeCallbacks) Finish(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishCalls++
	return nil
}

func (f *fakeCallbacks) Report(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportCalls++
	return nil
}

func (f *fakeCallbacks) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	return nil
}

func (f *fakeCallbacks) snapshot() (handleEvents int, handleBatches, finishes, reports, cleanups int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handleEventCalls), len(f.handleBatchCalls), f.finishCalls, f.reportCalls, f.cleanupCalls
}

// pingingCallbacks wraps fakeCallbacks with a Pinger implementation, for
// exercising RequireAPIKey's ping-dependent outcomes.
type pingingCallbacks struct {
	*fakeCallbacks
	pingErr error
}

func (p *pingingCallbacks) Ping(ctx context.Context) error { return p.pingErr }

func testLogger() *logging.Logger { return logging.New(nil) }

func baseConfig(name string) types.ModuleConfig {
	return types.ModuleConfig{
		Name:             name,
		Type:             types.ModuleTypeScan,
		WatchedEvents:    map[types.EventType]struct{}{types.WatchAny: {}},
		Flags:            map[types.Flag]struct{}{types.FlagPassive: {}},
		MaxEventHandlers: 1,
		BatchSize:        1,
		Priority:         3,
	}
}
