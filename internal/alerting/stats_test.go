package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

func TestStats_ThreeCreatedOneResolved(t *testing.T) {
	store := NewStore()
	now := time.Now()

	cpu := testRule("cpu", 0, alwaysTrue)
	logins := testRule("logins", 0, alwaysTrue)
	logins.Category = model.CategorySecurity
	logins.Severity = model.SeverityCritical

	a := store.Create(cpu, model.NewSnapshot(now, nil), now)
	store.Create(logins, model.NewSnapshot(now, nil), now)
	_, err := store.CreateManual(model.SeverityInfo, model.CategoryBusiness, "Promoção ativa", "", nil)
	require.NoError(t, err)
	require.True(t, store.Resolve(a.ID, "maria"))

	stats := store.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Resolved)

	sumType, sumCategory := 0, 0
	for _, n := range stats.ByType {
		sumType += n
	}
	for _, n := range stats.ByCategory {
		sumCategory += n
	}
	assert.Equal(t, stats.Total, sumType)
	assert.Equal(t, stats.Total, sumCategory)
	assert.Equal(t, 1, stats.ByType[model.SeverityCritical])
	assert.Equal(t, 1, stats.ByCategory[model.CategorySecurity])
}

func TestStats_EmptyStore(t *testing.T) {
	stats := NewStore().Stats()
	assert.Zero(t, stats.Total)
	assert.NotNil(t, stats.ByType)
	assert.NotNil(t, stats.ByCategory)
}

func TestAggregate(t *testing.T) {
	stats := Aggregate([]*model.Alert{
		{Type: model.SeverityWarning, Category: model.CategoryDatabase},
		{Type: model.SeverityWarning, Category: model.CategoryDatabase, Resolved: true},
	})
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 2, stats.ByType[model.SeverityWarning])
}
