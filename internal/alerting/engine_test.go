package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y001j/pizzeria-alerts/internal/config"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// scriptedSource returns whatever values were last set.
type scriptedSource struct {
	mu     sync.Mutex
	values map[string]interface{}
	calls  int
}

func (s *scriptedSource) Set(values map[string]interface{}) {
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
}

func (s *scriptedSource) Snapshot(ctx context.Context) model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return model.NewSnapshot(time.Now(), s.values)
}

type engineFixture struct {
	engine *Engine
	source *scriptedSource
	clock  *fakeClock
	sink   *recordingSink
}

func newEngineFixture(t *testing.T, rules []model.AlertRule, cfg EngineConfig) *engineFixture {
	t.Helper()
	t0 := time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	source := &scriptedSource{}
	sink := &recordingSink{}
	rec := newStubChannel("rec", true, func(ctx context.Context, a *model.Alert) error { return sink.Insert(ctx, a) })

	store := NewStore(WithClock(clock.Now))
	engine, err := NewEngine(source, rules, store, NewDispatcher([]notify.Channel{rec}, time.Second), cfg, WithEngineClock(clock.Now))
	require.NoError(t, err)
	return &engineFixture{engine: engine, source: source, clock: clock, sink: sink}
}

func (f *engineFixture) tickAt(t *testing.T, offset time.Duration) []*model.Alert {
	t.Helper()
	f.clock.Set(time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC).Add(offset))
	fired := f.engine.Tick(context.Background())
	require.NoError(t, f.engine.WaitDispatch(context.Background()))
	return fired
}

func TestEngine_DBConnectionFailedScenario(t *testing.T) {
	f := newEngineFixture(t, DefaultRules(), EngineConfig{})

	f.source.Set(map[string]interface{}{model.MetricDBConnectionFailed: true})
	fired := f.tickAt(t, 0)
	require.Len(t, fired, 1)
	assert.Equal(t, "Falha de Conexão com Database", fired[0].Title)
	assert.Equal(t, model.SeverityCritical, fired[0].Type)
	assert.Equal(t, "db-connection-failed", fired[0].RuleID)

	fired = f.tickAt(t, time.Minute)
	assert.Empty(t, fired, "still in cooldown")

	f.source.Set(map[string]interface{}{model.MetricDBConnectionFailed: false})
	fired = f.tickAt(t, 2*time.Minute)
	assert.Empty(t, fired)

	assert.Len(t, f.engine.ListActiveAlerts(), 1)
	assert.Len(t, f.sink.ids(), 1)
}

func TestEngine_CooldownEnforcement(t *testing.T) {
	f := newEngineFixture(t, []model.AlertRule{testRule("five", 5, alwaysTrue)}, EngineConfig{})

	assert.Len(t, f.tickAt(t, 0), 1)
	assert.Empty(t, f.tickAt(t, 4*time.Minute))
	assert.Len(t, f.tickAt(t, 6*time.Minute), 1)

	assert.Equal(t, 2, f.engine.Stats().Total)
}

func TestEngine_DisabledRuleNeverFires(t *testing.T) {
	rule := testRule("off", 0, alwaysTrue)
	rule.Enabled = false
	f := newEngineFixture(t, []model.AlertRule{rule}, EngineConfig{})

	for i := 0; i < 20; i++ {
		assert.Empty(t, f.tickAt(t, time.Duration(i)*time.Hour))
	}
	assert.Zero(t, f.engine.Stats().Total)
}

func TestEngine_RuleToggleAndOverrides(t *testing.T) {
	f := newEngineFixture(t, []model.AlertRule{testRule("r", 0, alwaysTrue)}, EngineConfig{})

	require.NoError(t, f.engine.SetRuleEnabled("r", false))
	assert.Empty(t, f.tickAt(t, 0))
	assert.ErrorIs(t, f.engine.SetRuleEnabled("missing", true), ErrUnknownRule)

	on := true
	cooldown := 60
	applied := f.engine.ApplyOverrides(map[string]config.RuleOverride{
		"r":       {Enabled: &on, CooldownMinutes: &cooldown},
		"missing": {Enabled: &on},
	})
	assert.Equal(t, 1, applied)
	assert.Len(t, f.tickAt(t, time.Minute), 1)
	assert.Empty(t, f.tickAt(t, 30*time.Minute))

	rules := f.engine.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, 60, rules[0].CooldownMinutes)
}

func TestEngine_ManualAlertBypassesRules(t *testing.T) {
	f := newEngineFixture(t, nil, EngineConfig{})

	alert, err := f.engine.TriggerManualAlert(model.SeverityWarning, model.CategoryBusiness, "Entregador acidentado", "rota sul sem cobertura", nil)
	require.NoError(t, err)
	require.NoError(t, f.engine.WaitDispatch(context.Background()))

	assert.Equal(t, []string{alert.ID}, f.sink.ids())
	active := f.engine.ListActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, alert.ID, active[0].ID)

	_, err = f.engine.TriggerManualAlert("bogus", model.CategoryBusiness, "x", "", nil)
	assert.Error(t, err)
}

func TestEngine_ResolveAndPrune(t *testing.T) {
	f := newEngineFixture(t, []model.AlertRule{testRule("r", 0, alwaysTrue)}, EngineConfig{Retention: 7 * 24 * time.Hour})

	fired := f.tickAt(t, 0)
	require.Len(t, fired, 1)
	assert.True(t, f.engine.ResolveAlert(fired[0].ID, "maria"))
	assert.False(t, f.engine.ResolveAlert(fired[0].ID, "maria"))

	f.clock.Set(time.Date(2024, 5, 18, 19, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, f.engine.Prune())
	assert.Zero(t, f.engine.Stats().Total)
}

func TestEngine_TickSurvivesPanickingSource(t *testing.T) {
	source := SnapshotFunc(func(ctx context.Context) model.Snapshot { panic("collector bug") })
	engine, err := NewEngine(source, []model.AlertRule{testRule("r", 0, alwaysTrue)}, nil, nil, EngineConfig{})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.Empty(t, engine.Tick(context.Background()))
	})
}

func TestEngine_CollectTimeoutReachesSource(t *testing.T) {
	var deadline time.Time
	source := SnapshotFunc(func(ctx context.Context) model.Snapshot {
		deadline, _ = ctx.Deadline()
		return model.NewSnapshot(time.Now(), nil)
	})
	engine, err := NewEngine(source, nil, nil, nil, EngineConfig{CollectTimeout: 2 * time.Second})
	require.NoError(t, err)

	engine.Tick(context.Background())
	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)
}

func TestEngine_StartStopLifecycle(t *testing.T) {
	f := newEngineFixture(t, []model.AlertRule{testRule("r", 0, alwaysTrue)}, EngineConfig{EvalInterval: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, f.engine.Start(ctx))
	assert.True(t, f.engine.Running())
	assert.ErrorIs(t, f.engine.Start(ctx), ErrEngineRunning)

	assert.Eventually(t, func() bool {
		f.source.mu.Lock()
		defer f.source.mu.Unlock()
		return f.source.calls >= 2
	}, 2*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Stop(stopCtx))
	assert.False(t, f.engine.Running())
	assert.NoError(t, f.engine.Stop(stopCtx), "second stop is a no-op")
	assert.ErrorIs(t, f.engine.Start(ctx), ErrEngineStopped)

	// Alerts created before stop survive it.
	assert.NotEmpty(t, f.engine.ListActiveAlerts())
}

func TestEngine_BadPruneSchedule(t *testing.T) {
	f := newEngineFixture(t, nil, EngineConfig{PruneSchedule: "every now and then"})
	assert.Error(t, f.engine.Start(context.Background()))
	assert.False(t, f.engine.Running())
}

func TestNewEngine_RequiresSource(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, nil, EngineConfig{})
	assert.Error(t, err)
}
