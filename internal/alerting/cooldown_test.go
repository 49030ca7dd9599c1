package alerting

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooldownTracker_EligibleWithoutHistory(t *testing.T) {
	tracker := NewCooldownTracker()
	assert.True(t, tracker.IsEligible("db-connection-failed", 5*time.Minute, time.Now()))

	_, ok := tracker.LastFired("db-connection-failed")
	assert.False(t, ok)
}

func TestCooldownTracker_Window(t *testing.T) {
	t0 := time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC)
	tracker := NewCooldownTracker()
	tracker.MarkFired("rule", t0)

	assert.False(t, tracker.IsEligible("rule", 5*time.Minute, t0.Add(4*time.Minute)))
	assert.True(t, tracker.IsEligible("rule", 5*time.Minute, t0.Add(5*time.Minute)), "boundary is inclusive")
	assert.True(t, tracker.IsEligible("rule", 5*time.Minute, t0.Add(6*time.Minute)))

	last, ok := tracker.LastFired("rule")
	require.True(t, ok)
	assert.Equal(t, t0, last)
}

func TestCooldownTracker_ZeroCooldownAlwaysEligible(t *testing.T) {
	now := time.Now()
	tracker := NewCooldownTracker()
	tracker.MarkFired("rule", now)
	assert.True(t, tracker.IsEligible("rule", 0, now))
}

func TestCooldownTracker_RulesAreIndependent(t *testing.T) {
	now := time.Now()
	tracker := NewCooldownTracker()
	tracker.MarkFired("a", now)

	assert.False(t, tracker.IsEligible("a", time.Minute, now))
	assert.True(t, tracker.IsEligible("b", time.Minute, now))
}

func TestCooldownTracker_Reset(t *testing.T) {
	now := time.Now()
	tracker := NewCooldownTracker()
	tracker.MarkFired("rule", now)
	tracker.Reset("rule")
	assert.True(t, tracker.IsEligible("rule", time.Hour, now))
}

func TestCooldownTracker_TryFireOnlyOnceUnderRace(t *testing.T) {
	now := time.Now()
	tracker := NewCooldownTracker()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.TryFire("rule", 5*time.Minute, now) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
