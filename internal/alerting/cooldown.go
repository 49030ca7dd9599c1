package alerting

import (
	"sync"
	"time"
)

// CooldownTracker remembers when each rule last fired. State is in memory
// only and starts empty after a restart.
type CooldownTracker struct {
	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewCooldownTracker creates an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{lastFired: make(map[string]time.Time)}
}

// IsEligible reports whether the rule may fire at now.
func (t *CooldownTracker) IsEligible(ruleID string, cooldown time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eligibleLocked(ruleID, cooldown, now)
}

// MarkFired records a firing at now.
func (t *CooldownTracker) MarkFired(ruleID string, now time.Time) {
	t.mu.Lock()
	t.lastFired[ruleID] = now
	t.mu.Unlock()
}

// TryFire checks eligibility and records the firing under one lock, so two
// racing callers can never both fire the same rule.
func (t *CooldownTracker) TryFire(ruleID string, cooldown time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.eligibleLocked(ruleID, cooldown, now) {
		return false
	}
	t.lastFired[ruleID] = now
	return true
}

// LastFired returns the last firing instant, if any.
func (t *CooldownTracker) LastFired(ruleID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastFired[ruleID]
	return ts, ok
}

// Reset forgets the rule's last firing.
func (t *CooldownTracker) Reset(ruleID string) {
	t.mu.Lock()
	delete(t.lastFired, ruleID)
	t.mu.Unlock()
}

func (t *CooldownTracker) eligibleLocked(ruleID string, cooldown time.Duration, now time.Time) bool {
	last, ok := t.lastFired[ruleID]
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}
