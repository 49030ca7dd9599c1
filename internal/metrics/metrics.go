// Package metrics defines the Prometheus metrics exported by the alert engine.
//
// Everything is registered on Registry rather than the global default so
// tests and embedded uses stay isolated. Names carry the pizzeria_ prefix.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every engine metric plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

var (
	// AlertsFiredTotal counts rule-triggered alerts by rule and severity.
	AlertsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pizzeria_alerts_fired_total",
			Help: "Total alerts raised by rule evaluation.",
		},
		[]string{"rule", "severity"},
	)

	// AlertsManualTotal counts operator-raised alerts by category.
	AlertsManualTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pizzeria_alerts_manual_total",
			Help: "Total manually triggered alerts.",
		},
		[]string{"category"},
	)

	// RuleFailuresTotal counts condition panics per rule.
	RuleFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pizzeria_rule_failures_total",
			Help: "Rule conditions that failed during evaluation.",
		},
		[]string{"rule"},
	)

	// ChannelSendsTotal counts notification attempts per channel and result.
	ChannelSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pizzeria_channel_sends_total",
			Help: "Notification attempts by channel, type and result.",
		},
		[]string{"channel", "type", "result"},
	)

	// TickDurationSeconds observes full evaluation ticks.
	TickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pizzeria_tick_duration_seconds",
			Help:    "Duration of evaluation ticks in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// AlertsActive is the number of unresolved alerts in the store.
	AlertsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pizzeria_alerts_active",
			Help: "Unresolved alerts currently held by the store.",
		},
	)

	// AlertsPrunedTotal counts resolved alerts removed by retention.
	AlertsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pizzeria_alerts_pruned_total",
			Help: "Resolved alerts removed by the retention job.",
		},
	)
)

func init() {
	Registry.MustRegister(
		AlertsFiredTotal,
		AlertsManualTotal,
		RuleFailuresTotal,
		ChannelSendsTotal,
		TickDurationSeconds,
		AlertsActive,
		AlertsPrunedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RecordSend records the outcome of one channel send.
func RecordSend(channel, channelType string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ChannelSendsTotal.WithLabelValues(channel, channelType, result).Inc()
}

// ObserveTick records how long an evaluation tick took.
func ObserveTick(start time.Time) {
	TickDurationSeconds.Observe(time.Since(start).Seconds())
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
