package model

import (
	"sort"
	"time"
)

// Metric names shared by collectors and the rule catalog.
const (
	MetricDBConnectionFailed = "dbConnectionFailed"
	MetricDBResponseTimeMs   = "dbResponseTimeMs"
	MetricDBPoolUsage        = "dbPoolUsage"
	MetricDBWaitCount        = "dbWaitCount"
	MetricDBSlowQueries      = "dbSlowQueries"

	MetricAvgResponseTimeMs  = "avgResponseTimeMs"
	MetricErrorRate          = "errorRate"
	MetricRequestsPerMinute  = "requestsPerMinute"
	MetricFailedLogins       = "failedLogins"
	MetricSuspiciousRequests = "suspiciousRequests"

	MetricCPUUsage    = "cpuUsage"
	MetricMemoryUsage = "memoryUsage"
	MetricDiskUsage   = "diskUsage"
	MetricLoadAvg1    = "loadAvg1"
	MetricGoroutines  = "goroutines"

	MetricPendingOrders      = "pendingOrders"
	MetricOrdersLastHour     = "ordersLastHour"
	MetricAvgDeliveryMinutes = "avgDeliveryMinutes"
	MetricCancelledLastHour  = "cancelledOrdersLastHour"
	MetricBusinessHours      = "businessHours"
)

// Snapshot is an immutable point-in-time capture of named metrics.
// Values are float64 or bool; integers are widened on construction.
type Snapshot struct {
	at     time.Time
	values map[string]interface{}
}

// NewSnapshot copies values into a new snapshot taken at the given instant.
func NewSnapshot(at time.Time, values map[string]interface{}) Snapshot {
	m := make(map[string]interface{}, len(values))
	for k, v := range values {
		if n, ok := normalize(v); ok {
			m[k] = n
		}
	}
	return Snapshot{at: at, values: m}
}

// At returns the capture instant.
func (s Snapshot) At() time.Time { return s.at }

// Len returns the number of metrics.
func (s Snapshot) Len() int { return len(s.values) }

// Has reports whether the metric is present.
func (s Snapshot) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Number returns the metric as a float64. Booleans map to 1/0; missing
// metrics return 0 and false.
func (s Snapshot) Number(name string) (float64, bool) {
	switch v := s.values[name].(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Float is Number without the presence flag.
func (s Snapshot) Float(name string) float64 {
	v, _ := s.Number(name)
	return v
}

// Bool returns the metric as a boolean. Non-zero numbers are true.
func (s Snapshot) Bool(name string) bool {
	switch v := s.values[name].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	}
	return false
}

// Values returns a copy of the underlying map, suitable for alert payloads.
func (s Snapshot) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Names returns metric names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func normalize(v interface{}) (interface{}, bool) {
	switch n := v.(type) {
	case bool:
		return n, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return nil, false
}
