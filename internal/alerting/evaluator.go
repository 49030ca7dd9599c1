package alerting

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/metrics"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

var (
	// ErrUnknownRule is returned when a rule id is not in the catalog.
	ErrUnknownRule = errors.New("unknown rule")
	// ErrDuplicateRule is returned when the catalog repeats a rule id.
	ErrDuplicateRule = errors.New("duplicate rule id")
)

// ruleEntry keeps the immutable rule next to its mutable switches.
type ruleEntry struct {
	rule     model.AlertRule
	enabled  atomic.Bool
	cooldown atomic.Int64 // minutes
	failures atomic.Int64
}

func (e *ruleEntry) current() model.AlertRule {
	r := e.rule
	r.Enabled = e.enabled.Load()
	r.CooldownMinutes = int(e.cooldown.Load())
	return r
}

// RuleFailure describes a condition that panicked during evaluation.
type RuleFailure struct {
	RuleID string
	Err    error
}

// Evaluator owns the rule catalog and decides which rules fire for a snapshot.
type Evaluator struct {
	entries  []*ruleEntry
	byID     map[string]*ruleEntry
	cooldown *CooldownTracker
}

// NewEvaluator builds an evaluator over the catalog. Rule ids must be unique
// and every rule needs a condition.
func NewEvaluator(rules []model.AlertRule, cooldown *CooldownTracker) (*Evaluator, error) {
	if cooldown == nil {
		cooldown = NewCooldownTracker()
	}
	e := &Evaluator{
		entries:  make([]*ruleEntry, 0, len(rules)),
		byID:     make(map[string]*ruleEntry, len(rules)),
		cooldown: cooldown,
	}
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %q: empty id", r.Name)
		}
		if _, exists := e.byID[r.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
		}
		if r.Condition == nil {
			return nil, fmt.Errorf("rule %s: nil condition", r.ID)
		}
		if r.CooldownMinutes < 0 {
			return nil, fmt.Errorf("rule %s: negative cooldown", r.ID)
		}
		entry := &ruleEntry{rule: r}
		entry.enabled.Store(r.Enabled)
		entry.cooldown.Store(int64(r.CooldownMinutes))
		e.entries = append(e.entries, entry)
		e.byID[r.ID] = entry
	}
	return e, nil
}

// Evaluate returns, in catalog order, every enabled rule whose condition holds
// and whose cooldown has elapsed. Cooldowns are only checked here; the caller
// consumes them when it actually fires.
func (e *Evaluator) Evaluate(snapshot model.Snapshot, now time.Time) ([]model.AlertRule, []RuleFailure) {
	var (
		firing   []model.AlertRule
		failures []RuleFailure
	)

	for _, entry := range e.entries {
		if !entry.enabled.Load() {
			continue
		}
		rule := entry.current()

		ok, err := safeCondition(rule, snapshot)
		if err != nil {
			entry.failures.Add(1)
			metrics.RuleFailuresTotal.WithLabelValues(rule.ID).Inc()
			log.Warn().Err(err).Str("rule_id", rule.ID).Msg("rule condition failed")
			failures = append(failures, RuleFailure{RuleID: rule.ID, Err: err})
			continue
		}
		if !ok {
			continue
		}
		if !e.cooldown.IsEligible(rule.ID, rule.Cooldown(), now) {
			log.Debug().Str("rule_id", rule.ID).Msg("rule in cooldown")
			continue
		}
		firing = append(firing, rule)
	}

	return firing, failures
}

// Rules returns the catalog with current enabled/cooldown values.
func (e *Evaluator) Rules() []model.AlertRule {
	out := make([]model.AlertRule, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, entry.current())
	}
	return out
}

// Rule looks up one rule by id.
func (e *Evaluator) Rule(id string) (model.AlertRule, bool) {
	entry, ok := e.byID[id]
	if !ok {
		return model.AlertRule{}, false
	}
	return entry.current(), true
}

// SetEnabled toggles a rule.
func (e *Evaluator) SetEnabled(id string, enabled bool) error {
	entry, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	entry.enabled.Store(enabled)
	return nil
}

// SetCooldown changes a rule's cooldown in minutes.
func (e *Evaluator) SetCooldown(id string, minutes int) error {
	entry, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	if minutes < 0 {
		return fmt.Errorf("rule %s: negative cooldown", id)
	}
	entry.cooldown.Store(int64(minutes))
	return nil
}

// Failures returns how many times the rule's condition has failed.
func (e *Evaluator) Failures(id string) int64 {
	entry, ok := e.byID[id]
	if !ok {
		return 0
	}
	return entry.failures.Load()
}

func safeCondition(rule model.AlertRule, snapshot model.Snapshot) (fired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			fired = false
			err = fmt.Errorf("condition panic: %v", r)
		}
	}()
	return rule.Condition(snapshot), nil
}
