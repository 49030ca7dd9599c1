package alerting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/metrics"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

// DefaultRetention is how long resolved alerts are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Persister records resolutions durably. It receives the whole alert so the
// row can be written even if the database channel has not inserted it yet.
type Persister interface {
	Resolve(ctx context.Context, alert *model.Alert) error
}

// Store owns every Alert and is the only place their lifecycle changes.
type Store struct {
	mu        sync.RWMutex
	alerts    map[string]*model.Alert
	persister Persister
	now       func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPersister forwards resolutions to a durable sink.
func WithPersister(p Persister) StoreOption {
	return func(s *Store) { s.persister = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty alert store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		alerts: make(map[string]*model.Alert),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds an alert for a firing rule and inserts it as active.
func (s *Store) Create(rule model.AlertRule, snapshot model.Snapshot, at time.Time) *model.Alert {
	message := rule.Description
	if rule.Message != nil {
		message = renderMessage(rule, snapshot)
	}

	alert := &model.Alert{
		RuleID:    rule.ID,
		Type:      rule.Severity,
		Category:  rule.Category,
		Title:     rule.Name,
		Message:   message,
		Data:      snapshot.Values(),
		Timestamp: at,
		Actions:   model.ActionsFor(rule.Category),
	}

	s.mu.Lock()
	alert.ID = s.uniqueIDLocked(fmt.Sprintf("%s-%d", rule.ID, at.UnixMilli()))
	s.alerts[alert.ID] = alert
	s.mu.Unlock()

	s.refreshGauge()
	return alert.Clone()
}

// CreateManual inserts an operator or system raised alert. No rule or
// cooldown applies.
func (s *Store) CreateManual(severity model.Severity, category model.Category, title, message string, data map[string]interface{}) (*model.Alert, error) {
	if !severity.Valid() {
		return nil, fmt.Errorf("invalid severity %q", severity)
	}
	if !category.Valid() {
		return nil, fmt.Errorf("invalid category %q", category)
	}
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	payload := make(map[string]interface{}, len(data))
	for k, v := range data {
		payload[k] = v
	}

	alert := &model.Alert{
		ID:        "manual-" + uuid.NewString(),
		Type:      severity,
		Category:  category,
		Title:     title,
		Message:   message,
		Data:      payload,
		Timestamp: s.now(),
		Actions:   model.ActionsFor(category),
	}

	s.mu.Lock()
	s.alerts[alert.ID] = alert
	s.mu.Unlock()

	s.refreshGauge()
	metrics.AlertsManualTotal.WithLabelValues(string(category)).Inc()
	return alert.Clone(), nil
}

// Get returns a copy of the alert.
func (s *Store) Get(id string) (*model.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, false
	}
	return alert.Clone(), true
}

// Active returns unresolved alerts, newest first.
func (s *Store) Active() []*model.Alert {
	s.mu.RLock()
	out := make([]*model.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		if !alert.Resolved {
			out = append(out, alert.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out
}

// All returns every alert, newest first.
func (s *Store) All() []*model.Alert {
	s.mu.RLock()
	out := make([]*model.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		out = append(out, alert.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out
}

// Len returns the number of stored alerts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// Resolve marks an active alert resolved. Unknown or already resolved ids
// return false and change nothing.
func (s *Store) Resolve(id, resolvedBy string) bool {
	if resolvedBy == "" {
		resolvedBy = "system"
	}

	s.mu.Lock()
	alert, ok := s.alerts[id]
	if !ok || alert.Resolved {
		s.mu.Unlock()
		return false
	}
	now := s.now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.ResolvedBy = resolvedBy
	resolved := alert.Clone()
	s.mu.Unlock()

	s.refreshGauge()

	if s.persister != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.persister.Resolve(ctx, resolved); err != nil {
			log.Debug().Err(err).Str("alert_id", id).Msg("persist alert resolution failed")
		}
	}
	return true
}

// Prune removes resolved alerts older than retention and returns how many
// were dropped. Active alerts are never removed.
func (s *Store) Prune(retention time.Duration) int {
	now := s.now()

	s.mu.Lock()
	removed := 0
	for id, alert := range s.alerts {
		if alert.Resolved && now.Sub(alert.Timestamp) > retention {
			delete(s.alerts, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		metrics.AlertsPrunedTotal.Add(float64(removed))
	}
	return removed
}

func (s *Store) uniqueIDLocked(base string) string {
	id := base
	for n := 1; ; n++ {
		if _, exists := s.alerts[id]; !exists {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

func (s *Store) refreshGauge() {
	s.mu.RLock()
	active := 0
	for _, alert := range s.alerts {
		if !alert.Resolved {
			active++
		}
	}
	s.mu.RUnlock()
	metrics.AlertsActive.Set(float64(active))
}

func renderMessage(rule model.AlertRule, snapshot model.Snapshot) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = rule.Description
		}
	}()
	return rule.Message(snapshot)
}

func sortNewestFirst(alerts []*model.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].ID > alerts[j].ID
		}
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
}
