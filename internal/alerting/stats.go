package alerting

import "github.com/y001j/pizzeria-alerts/internal/model"

// Stats folds the store's current contents into counts. It takes the read
// lock only, so it is safe alongside writers.
func (s *Store) Stats() model.AlertStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := newStats()
	for _, alert := range s.alerts {
		addToStats(&stats, alert)
	}
	return stats
}

// Aggregate computes stats over an arbitrary alert list.
func Aggregate(alerts []*model.Alert) model.AlertStats {
	stats := newStats()
	for _, alert := range alerts {
		addToStats(&stats, alert)
	}
	return stats
}

func newStats() model.AlertStats {
	return model.AlertStats{
		ByType:     make(map[model.Severity]int),
		ByCategory: make(map[model.Category]int),
	}
}

func addToStats(stats *model.AlertStats, alert *model.Alert) {
	stats.Total++
	if alert.Resolved {
		stats.Resolved++
	} else {
		stats.Active++
	}
	stats.ByType[alert.Type]++
	stats.ByCategory[alert.Category]++
}
