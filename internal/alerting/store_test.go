package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

type fakePersister struct {
	mu      sync.Mutex
	updates []string
	err     error
}

func (f *fakePersister) Resolve(ctx context.Context, alert *model.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, alert.ID+":"+alert.ResolvedBy)
	if !alert.Resolved || alert.ResolvedAt == nil {
		return errors.New("persisted an unresolved alert")
	}
	return f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore_CreateFromRule(t *testing.T) {
	at := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	store := NewStore()
	rule := testRule("high-cpu-usage", 15, alwaysTrue)
	rule.Message = func(s model.Snapshot) string { return "CPU alta" }
	snap := model.NewSnapshot(at, map[string]interface{}{model.MetricCPUUsage: 97})

	alert := store.Create(rule, snap, at)

	assert.Equal(t, "high-cpu-usage", alert.RuleID)
	assert.Equal(t, model.SeverityWarning, alert.Type)
	assert.Equal(t, model.CategorySystem, alert.Category)
	assert.Equal(t, rule.Name, alert.Title)
	assert.Equal(t, "CPU alta", alert.Message)
	assert.Equal(t, 97.0, alert.Data[model.MetricCPUUsage])
	assert.Equal(t, at, alert.Timestamp)
	assert.False(t, alert.Resolved)
	assert.Equal(t, model.ActionsFor(model.CategorySystem), alert.Actions)

	stored, ok := store.Get(alert.ID)
	require.True(t, ok)
	assert.Equal(t, alert.ID, stored.ID)
}

func TestStore_CreateMessageFallsBackToDescription(t *testing.T) {
	store := NewStore()
	rule := testRule("r", 0, alwaysTrue)
	rule.Message = func(model.Snapshot) string { panic("missing metric") }

	alert := store.Create(rule, model.NewSnapshot(time.Now(), nil), time.Now())
	assert.Equal(t, rule.Description, alert.Message)
}

func TestStore_CreateSameInstantGetsDistinctIDs(t *testing.T) {
	at := time.Now()
	store := NewStore()
	rule := testRule("r", 0, alwaysTrue)

	a := store.Create(rule, model.NewSnapshot(at, nil), at)
	b := store.Create(rule, model.NewSnapshot(at, nil), at)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, store.Len())
}

func TestStore_ReturnedAlertsAreCopies(t *testing.T) {
	store := NewStore()
	alert := store.Create(testRule("r", 0, alwaysTrue), model.NewSnapshot(time.Now(), map[string]interface{}{"x": 1}), time.Now())
	alert.Title = "mutated"
	alert.Data["x"] = 2.0

	stored, _ := store.Get(alert.ID)
	assert.NotEqual(t, "mutated", stored.Title)
	assert.Equal(t, 1.0, stored.Data["x"])
}

func TestStore_CreateManual(t *testing.T) {
	now := time.Date(2024, 5, 10, 21, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(fixedClock(now)))

	alert, err := store.CreateManual(model.SeverityInfo, model.CategoryBusiness, "Forno em manutenção", "forno 2 parado", map[string]interface{}{"forno": 2})
	require.NoError(t, err)
	assert.Contains(t, alert.ID, "manual-")
	assert.Empty(t, alert.RuleID)
	assert.Equal(t, now, alert.Timestamp)
	assert.Equal(t, model.ActionsFor(model.CategoryBusiness), alert.Actions)

	_, err = store.CreateManual("fatal", model.CategoryBusiness, "x", "", nil)
	assert.Error(t, err)
	_, err = store.CreateManual(model.SeverityInfo, "kitchen", "x", "", nil)
	assert.Error(t, err)
	_, err = store.CreateManual(model.SeverityInfo, model.CategoryBusiness, "", "", nil)
	assert.Error(t, err)
}

func TestStore_ResolveIsIdempotent(t *testing.T) {
	now := time.Date(2024, 5, 10, 22, 0, 0, 0, time.UTC)
	persister := &fakePersister{}
	store := NewStore(WithClock(fixedClock(now)), WithPersister(persister))
	alert := store.Create(testRule("r", 0, alwaysTrue), model.NewSnapshot(now, nil), now.Add(-time.Hour))

	assert.True(t, store.Resolve(alert.ID, "maria"))
	assert.False(t, store.Resolve(alert.ID, "joao"))

	stored, _ := store.Get(alert.ID)
	assert.True(t, stored.Resolved)
	assert.Equal(t, "maria", stored.ResolvedBy)
	require.NotNil(t, stored.ResolvedAt)
	assert.Equal(t, now, *stored.ResolvedAt)
	assert.Equal(t, []string{alert.ID + ":maria"}, persister.updates)
}

func TestStore_ResolveUnknownID(t *testing.T) {
	store := NewStore()
	assert.False(t, store.Resolve("nope", "maria"))
}

func TestStore_ResolveDefaultsResolver(t *testing.T) {
	store := NewStore()
	alert := store.Create(testRule("r", 0, alwaysTrue), model.NewSnapshot(time.Now(), nil), time.Now())
	require.True(t, store.Resolve(alert.ID, ""))
	stored, _ := store.Get(alert.ID)
	assert.Equal(t, "system", stored.ResolvedBy)
}

func TestStore_ResolveToleratesPersisterFailure(t *testing.T) {
	store := NewStore(WithPersister(&fakePersister{err: errors.New("no such table: system_alerts")}))
	alert := store.Create(testRule("r", 0, alwaysTrue), model.NewSnapshot(time.Now(), nil), time.Now())

	assert.True(t, store.Resolve(alert.ID, "maria"))
	stored, _ := store.Get(alert.ID)
	assert.True(t, stored.Resolved)
}

func TestStore_PruneBoundary(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(fixedClock(now)))
	rule := testRule("r", 0, alwaysTrue)
	snap := model.NewSnapshot(now, nil)

	old := store.Create(rule, snap, now.Add(-8*24*time.Hour))
	recent := store.Create(rule, snap, now.Add(-6*24*time.Hour))
	ancientActive := store.Create(rule, snap, now.Add(-30*24*time.Hour))
	require.True(t, store.Resolve(old.ID, "maria"))
	require.True(t, store.Resolve(recent.ID, "maria"))

	removed := store.Prune(7 * 24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := store.Get(old.ID)
	assert.False(t, ok)
	_, ok = store.Get(recent.ID)
	assert.True(t, ok)
	_, ok = store.Get(ancientActive.ID)
	assert.True(t, ok, "active alerts are never pruned")
}

func TestStore_ActiveNewestFirst(t *testing.T) {
	base := time.Now()
	store := NewStore()
	rule := testRule("r", 0, alwaysTrue)
	first := store.Create(rule, model.NewSnapshot(base, nil), base)
	second := store.Create(rule, model.NewSnapshot(base, nil), base.Add(time.Minute))
	third := store.Create(rule, model.NewSnapshot(base, nil), base.Add(2*time.Minute))
	require.True(t, store.Resolve(second.ID, "maria"))

	active := store.Active()
	require.Len(t, active, 2)
	assert.Equal(t, third.ID, active[0].ID)
	assert.Equal(t, first.ID, active[1].ID)
	assert.Len(t, store.All(), 3)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()
	rule := testRule("r", 0, alwaysTrue)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alert := store.Create(rule, model.NewSnapshot(time.Now(), nil), time.Now())
			store.Active()
			store.Stats()
			store.Resolve(alert.ID, "maria")
		}()
	}
	wg.Wait()

	stats := store.Stats()
	assert.Equal(t, 20, stats.Total)
	assert.Equal(t, 20, stats.Resolved)
}
