package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/config"
	"github.com/y001j/pizzeria-alerts/internal/metrics"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

var (
	// ErrEngineRunning is returned by Start on a running engine.
	ErrEngineRunning = errors.New("engine already running")
	// ErrEngineStopped is returned by Start once the engine has been stopped.
	ErrEngineStopped = errors.New("engine stopped")
)

// SnapshotSource supplies the metrics a tick evaluates. It must honour ctx
// and return degraded values instead of failing.
type SnapshotSource interface {
	Snapshot(ctx context.Context) model.Snapshot
}

// SnapshotFunc adapts a function to SnapshotSource.
type SnapshotFunc func(ctx context.Context) model.Snapshot

// Snapshot calls f.
func (f SnapshotFunc) Snapshot(ctx context.Context) model.Snapshot { return f(ctx) }

// EngineConfig holds the loop timings.
type EngineConfig struct {
	EvalInterval   time.Duration
	PruneSchedule  string
	Retention      time.Duration
	CollectTimeout time.Duration
}

// DefaultEngineConfig returns the standard timings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EvalInterval:   30 * time.Second,
		PruneSchedule:  "@every 1h",
		Retention:      DefaultRetention,
		CollectTimeout: 10 * time.Second,
	}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides time.Now for ticks.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// Engine ties snapshot collection, rule evaluation, the alert store and the
// dispatcher together on two timers.
type Engine struct {
	source     SnapshotSource
	evaluator  *Evaluator
	cooldowns  *CooldownTracker
	store      *Store
	dispatcher *Dispatcher
	cfg        EngineConfig
	now        func() time.Time

	// tickMu serialises evaluation ticks and pruning.
	tickMu sync.Mutex

	runMu    sync.Mutex
	running  bool
	stopped  bool
	ticker   *time.Ticker
	stopCh   chan struct{}
	loopDone chan struct{}
	cron     *cron.Cron
}

// NewEngine builds an engine over the rule catalog.
func NewEngine(source SnapshotSource, rules []model.AlertRule, store *Store, dispatcher *Dispatcher, cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if source == nil {
		return nil, errors.New("snapshot source is required")
	}
	if store == nil {
		store = NewStore()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(nil, 0)
	}
	defaults := DefaultEngineConfig()
	if cfg.EvalInterval <= 0 {
		cfg.EvalInterval = defaults.EvalInterval
	}
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = defaults.PruneSchedule
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaults.Retention
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = defaults.CollectTimeout
	}

	cooldowns := NewCooldownTracker()
	evaluator, err := NewEvaluator(rules, cooldowns)
	if err != nil {
		return nil, fmt.Errorf("build rule catalog: %w", err)
	}

	e := &Engine{
		source:     source,
		evaluator:  evaluator,
		cooldowns:  cooldowns,
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start launches the evaluation ticker and the pruning schedule.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.stopped {
		return ErrEngineStopped
	}
	if e.running {
		return ErrEngineRunning
	}

	c := cron.New()
	if _, err := c.AddFunc(e.cfg.PruneSchedule, e.pruneJob); err != nil {
		return fmt.Errorf("schedule pruning %q: %w", e.cfg.PruneSchedule, err)
	}

	e.cron = c
	e.ticker = time.NewTicker(e.cfg.EvalInterval)
	e.stopCh = make(chan struct{})
	e.loopDone = make(chan struct{})
	e.running = true

	go e.loop(ctx, e.stopCh, e.ticker.C, e.loopDone)
	c.Start()

	log.Info().
		Dur("eval_interval", e.cfg.EvalInterval).
		Str("prune_schedule", e.cfg.PruneSchedule).
		Dur("retention", e.cfg.Retention).
		Int("rules", len(e.evaluator.Rules())).
		Int("channels", len(e.dispatcher.Channels())).
		Msg("alert engine started")
	return nil
}

// Stop halts both timers, waits for an in-flight tick or prune, then waits
// for pending dispatches until ctx expires. Alerts already created stay in
// the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.runMu.Lock()
	if !e.running {
		e.stopped = true
		e.runMu.Unlock()
		return nil
	}
	e.running = false
	e.stopped = true
	e.ticker.Stop()
	close(e.stopCh)
	loopDone := e.loopDone
	cronDone := e.cron.Stop()
	e.runMu.Unlock()

	for _, done := range []<-chan struct{}{loopDone, cronDone.Done()} {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("stop engine: %w", ctx.Err())
		}
	}
	if err := e.dispatcher.Wait(ctx); err != nil {
		return fmt.Errorf("wait for dispatches: %w", err)
	}
	log.Info().Msg("alert engine stopped")
	return nil
}

// Running reports whether the timers are active.
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

func (e *Engine) loop(ctx context.Context, stopCh <-chan struct{}, tickCh <-chan time.Time, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-tickCh:
			e.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass and returns the alerts it created.
// Dispatch happens in the background. Unexpected panics are logged and
// end the tick.
func (e *Engine) Tick(ctx context.Context) (fired []*model.Alert) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := time.Now()
	defer metrics.ObserveTick(start)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("fired", len(fired)).Msg("evaluation tick aborted")
		}
	}()

	now := e.now()
	collectCtx, cancel := context.WithTimeout(ctx, e.cfg.CollectTimeout)
	snapshot := e.source.Snapshot(collectCtx)
	cancel()

	firing, _ := e.evaluator.Evaluate(snapshot, now)
	for _, rule := range firing {
		if !e.cooldowns.TryFire(rule.ID, rule.Cooldown(), now) {
			continue
		}
		alert := e.store.Create(rule, snapshot, now)
		metrics.AlertsFiredTotal.WithLabelValues(rule.ID, string(rule.Severity)).Inc()
		log.Warn().
			Str("rule_id", rule.ID).
			Str("alert_id", alert.ID).
			Str("severity", string(alert.Type)).
			Str("category", string(alert.Category)).
			Msg(alert.Title)

		e.dispatcher.DispatchAsync(alert)
		fired = append(fired, alert)
	}
	return fired
}

func (e *Engine) pruneJob() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("prune job aborted")
		}
	}()
	e.Prune()
}

// Prune drops resolved alerts past the retention window. It never runs
// concurrently with a tick.
func (e *Engine) Prune() int {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	removed := e.store.Prune(e.cfg.Retention)
	if removed > 0 {
		log.Info().Int("removed", removed).Dur("retention", e.cfg.Retention).Msg("pruned resolved alerts")
	}
	return removed
}

// WaitDispatch blocks until background dispatches finish or ctx is done.
func (e *Engine) WaitDispatch(ctx context.Context) error {
	return e.dispatcher.Wait(ctx)
}

// ListActiveAlerts returns unresolved alerts, newest first.
func (e *Engine) ListActiveAlerts() []*model.Alert {
	return e.store.Active()
}

// ResolveAlert resolves an alert. It returns false for unknown or already
// resolved ids.
func (e *Engine) ResolveAlert(id, resolvedBy string) bool {
	ok := e.store.Resolve(id, resolvedBy)
	if ok {
		log.Info().Str("alert_id", id).Str("resolved_by", resolvedBy).Msg("alert resolved")
	}
	return ok
}

// Stats aggregates the store.
func (e *Engine) Stats() model.AlertStats {
	return e.store.Stats()
}

// TriggerManualAlert stores and dispatches an alert without rule or
// cooldown checks.
func (e *Engine) TriggerManualAlert(severity model.Severity, category model.Category, title, message string, data map[string]interface{}) (*model.Alert, error) {
	alert, err := e.store.CreateManual(severity, category, title, message, data)
	if err != nil {
		return nil, err
	}
	log.Warn().
		Str("alert_id", alert.ID).
		Str("severity", string(alert.Type)).
		Str("category", string(alert.Category)).
		Msg(alert.Title)
	e.dispatcher.DispatchAsync(alert)
	return alert, nil
}

// Rules returns the catalog with current settings.
func (e *Engine) Rules() []model.AlertRule {
	return e.evaluator.Rules()
}

// RuleStatus is a rule with its runtime state.
type RuleStatus struct {
	model.AlertRule
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
	Failures    int64      `json:"failures"`
}

// RuleStatuses returns the catalog with when each rule last fired and how
// often its condition failed.
func (e *Engine) RuleStatuses() []RuleStatus {
	rules := e.evaluator.Rules()
	out := make([]RuleStatus, 0, len(rules))
	for _, rule := range rules {
		st := RuleStatus{AlertRule: rule, Failures: e.evaluator.Failures(rule.ID)}
		if last, ok := e.cooldowns.LastFired(rule.ID); ok {
			st.LastFiredAt = &last
		}
		out = append(out, st)
	}
	return out
}

// ResetRuleCooldown lets a rule fire again on the next tick.
func (e *Engine) ResetRuleCooldown(id string) error {
	if _, ok := e.evaluator.Rule(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	e.cooldowns.Reset(id)
	log.Info().Str("rule_id", id).Msg("rule cooldown reset")
	return nil
}

// SetRuleEnabled toggles a rule at runtime.
func (e *Engine) SetRuleEnabled(id string, enabled bool) error {
	if err := e.evaluator.SetEnabled(id, enabled); err != nil {
		return err
	}
	log.Info().Str("rule_id", id).Bool("enabled", enabled).Msg("rule toggled")
	return nil
}

// ApplyOverrides applies rule overrides from config or the overrides file.
func (e *Engine) ApplyOverrides(overrides map[string]config.RuleOverride) int {
	return ApplyOverrides(e.evaluator, overrides)
}

// Channels returns the dispatcher's channels.
func (e *Engine) Channels() []notify.Channel {
	return e.dispatcher.Channels()
}
