package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/scancore/scancore/internal/dedup"
	"github.com/scancore/scancore/internal/logging"
	"github.com/scancore/scancore/internal/metrics"
	"github.com/scancore/scancore/internal/module"
	"github.com/scancore/scancore/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingCallbacks is a minimal module.Callbacks for exercising the
// engine: it records every event it handles and, if handleEventFn is set,
// delegates to it (typically to emit further events via the owning
// *module.Module, assigned by the test after construction, the same
// closure-over-a-later-assigned-variable pattern internal/module's own
// tests use).
type recordingCallbacks struct {
	module.DefaultCallbacks

	mu            sync.Mutex
	handled       []*types.Event
	setupOutcome  module.SetupOutcome
	setupErr      error
	cleanups      int
	reports       int
	handleEventFn func(ctx context.Context, e *types.Event) error
}

func newRecordingCallbacks() *recordingCallbacks {
	return &recordingCallbacks{setupOutcome: module.SetupOutcome{Result: module.SetupOK}}
}

func (c *recordingCallbacks) Setup(ctx context.Context) (module.SetupOutcome, error) {
	return c.setupOutcome, c.setupErr
}

func (c *recordingCallbacks) HandleEvent(ctx context.Context, e *types.Event) error {
	c.mu.Lock()
	c.handled = append(c.handled, e)
	c.mu.Unlock()
	if c.handleEventFn != nil {
		return c.handleEventFn(ctx, e)
	}
	return nil
}

func (c *recordingCallbacks) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	c.cleanups++
	c.mu.Unlock()
	return nil
}

func (c *recordingCallbacks) Report(ctx context.Context) error {
	c.mu.Lock()
	c.reports++
	c.mu.Unlock()
	return nil
}

func (c *recordingCallbacks) snapshot() (handled int, cleanups int, reports int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handled), c.cleanups, c.reports
}

func testLog() *logging.Logger { return logging.New(nil) }

func baseConfig(name string, watched ...types.EventType) types.ModuleConfig {
	set := make(map[types.EventType]struct{}, len(watched))
	for _, w := range watched {
		set[w] = struct{}{}
	}
	return types.ModuleConfig{
		Name:             name,
		Type:             types.ModuleTypeScan,
		WatchedEvents:    set,
		Flags:            map[types.Flag]struct{}{types.FlagPassive: {}},
		MaxEventHandlers: 1,
		BatchSize:        1,
		Priority:         3,
	}
}

func TestNewEngineDefaults(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil, nil, nil)
	assert.False(t, e.Stopping())
	assert.True(t, e.InWhitelist(&types.Event{Type: "DNS_NAME"}), "default whitelist allows everything")
	assert.Equal(t, 0, e.ScopeSearchDistance())
	assert.Equal(t, DefaultPollInterval, e.cfg.PollInterval)
	assert.Equal(t, DefaultResampleWindow, e.cfg.ResampleWindow)
}

func TestRegisterModuleIgnoresDuplicateName(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil, nil, testLog())
	cb := newRecordingCallbacks()
	m1 := module.New(baseConfig("dup"), e, cb, testLog())
	m2 := module.New(baseConfig("dup"), e, cb, testLog())

	e.RegisterModule(m1)
	e.RegisterModule(m2)

	assert.Len(t, e.moduleSnapshot(), 1)
}

func TestMakeEventValidation(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil, nil, testLog())

	_, err := e.MakeEvent(context.Background(), module.EventOpts{Type: ""})
	require.Error(t, err)
	var verr *module.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = e.MakeEvent(context.Background(), module.EventOpts{Type: "DNS_NAME", ScopeDistance: -1})
	require.Error(t, err)

	ev, err := e.MakeEvent(context.Background(), module.EventOpts{Type: "DNS_NAME", ScopeDistance: 0, Priority: 9})
	require.NoError(t, err)
	assert.Equal(t, types.EventType("DNS_NAME"), ev.Type)
	assert.Equal(t, 5, ev.Priority, "priority clamped to the valid [1,5] range")
	assert.NotEmpty(t, ev.Fingerprint)
}

func TestACatchRecoversPanicAndSwallowsError(t *testing.T) {
	e := NewEngine(EngineConfig{}, metrics.New(), nil, testLog())

	assert.NotPanics(t, func() {
		e.ACatch(context.Background(), "portscan.handle_event", func(ctx context.Context) error {
			panic("boom")
		})
	})

	assert.NotPanics(t, func() {
		e.ACatch(context.Background(), "portscan.handle_event", func(ctx context.Context) error {
			return errors.New("handled but reported")
		})
	})
}

func TestDispatchSkipsProducingModuleAndRespectsWatches(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil, nil, testLog())
	producerCB := newRecordingCallbacks()
	consumerCB := newRecordingCallbacks()
	otherCB := newRecordingCallbacks()

	producer := module.New(baseConfig("producer", "OUTPUT"), e, producerCB, testLog())
	consumer := module.New(baseConfig("consumer", "OUTPUT"), e, consumerCB, testLog())
	other := module.New(baseConfig("other", "UNRELATED"), e, otherCB, testLog())

	e.RegisterModule(producer)
	e.RegisterModule(consumer)
	e.RegisterModule(other)

	ev := &types.Event{Type: "OUTPUT", Module: "producer", Priority: 3}
	e.dispatch(ev)

	assert.Equal(t, 0, producer.Status().Events.Incoming, "producer never receives its own output")
	assert.Equal(t, 1, consumer.Status().Events.Incoming)
	assert.Equal(t, 0, other.Status().Events.Incoming, "other does not watch OUTPUT")
}

func TestDispatchDropsDuplicateFingerprint(t *testing.T) {
	d := dedup.New(time.Minute, 1000, 0.0001, testLog())
	mc := metrics.New()
	e := NewEngine(EngineConfig{}, mc, d, testLog())
	consumerCB := newRecordingCallbacks()
	consumer := module.New(baseConfig("consumer", "OUTPUT"), e, consumerCB, testLog())
	e.RegisterModule(consumer)

	ev := &types.Event{Type: "OUTPUT", Module: "producer", Priority: 3, Fingerprint: "same-key"}
	e.dispatch(ev)
	e.dispatch(ev)

	assert.Equal(t, 1, consumer.Status().Events.Incoming, "second dispatch with the same fingerprint is dropped")
}

func TestAwaitQuiescenceTimesOutWhenNeverFinished(t *testing.T) {
	e := NewEngine(EngineConfig{PollInterval: 5 * time.Millisecond, ResampleWindow: 5 * time.Millisecond}, nil, nil, testLog())
	cb := newRecordingCallbacks()
	m := module.New(baseConfig("stuck", "DNS_NAME"), e, cb, testLog())
	e.RegisterModule(m)
	m.QueueEvent(&types.Event{Type: "DNS_NAME", Priority: 3}) // never started, so never drained

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.False(t, e.awaitQuiescence(ctx))
}

// TestRunRoutesEventsBetweenModulesAndCompletesLifecycle is the end-to-end
// scenario: a producer emits one OUTPUT event in response to a seeded
// event, a consumer receives it, and Run settles through quiescence,
// FINISHED, Report and Cleanup exactly once each.
func TestRunRoutesEventsBetweenModulesAndCompletesLifecycle(t *testing.T) {
	e := NewEngine(EngineConfig{
		PollInterval:   5 * time.Millisecond,
		ResampleWindow: 10 * time.Millisecond,
	}, metrics.New(), dedup.New(time.Minute, 1000, 0.0001, testLog()), testLog())

	producerCB := newRecordingCallbacks()
	consumerCB := newRecordingCallbacks()

	producer := module.New(baseConfig("producer", types.WatchAny), e, producerCB, testLog())
	consumer := module.New(baseConfig("consumer", "OUTPUT"), e, consumerCB, testLog())

	producerCB.handleEventFn = func(ctx context.Context, ev *types.Event) error {
		if ev.Type != "OUTPUT" {
			producer.EmitEvent(ctx, module.EventOpts{Type: "OUTPUT", Priority: 3}, module.EmitOptions{})
		}
		return nil
	}

	e.RegisterModule(producer)
	e.RegisterModule(consumer)

	e.Seed(&types.Event{Type: "SEED", Priority: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	handledByConsumer, consumerCleanups, consumerReports := consumerCB.snapshot()
	_, producerCleanups, producerReports := producerCB.snapshot()

	assert.Equal(t, 1, handledByConsumer, "consumer should have received exactly the one routed OUTPUT event")
	assert.Equal(t, 1, consumerCleanups)
	assert.Equal(t, 1, consumerReports)
	assert.Equal(t, 1, producerCleanups)
	assert.Equal(t, 1, producerReports)
}

func TestRunSkipsHardFailedSetupModule(t *testing.T) {
	e := NewEngine(EngineConfig{PollInterval: 5 * time.Millisecond, ResampleWindow: 5 * time.Millisecond}, nil, nil, testLog())
	cb := newRecordingCallbacks()
	cb.setupErr = errors.New("boom: unrecoverable")
	m := module.New(baseConfig("brokenmod", "DNS_NAME"), e, cb, testLog())
	e.RegisterModule(m)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	_, cleanups, reports := cb.snapshot()
	assert.Equal(t, 1, cleanups, "cleanup runs exactly once per module per scan (spec.md §8 scenario 6), even for a module excluded at setup")
	assert.Equal(t, 0, reports, "report is only invoked for modules that actually started")
}
