package collector

import (
	"context"
	"sync"
	"time"

	"github.com/y001j/pizzeria-alerts/internal/model"
)

// RequestCounters accumulates HTTP traffic figures between collects. The
// web middleware and login handler feed it.
type RequestCounters struct {
	mu           sync.Mutex
	requests     int
	errors       int
	latency      time.Duration
	failedLogins int
	suspicious   int
	windowStart  time.Time
	now          func() time.Time
}

// NewRequestCounters 创建请求计数器
func NewRequestCounters() *RequestCounters {
	return &RequestCounters{windowStart: time.Now(), now: time.Now}
}

// ObserveRequest records one finished request. 5xx counts as an error.
func (c *RequestCounters) ObserveRequest(status int, latency time.Duration) {
	c.mu.Lock()
	c.requests++
	c.latency += latency
	if status >= 500 {
		c.errors++
	}
	c.mu.Unlock()
}

// ObserveFailedLogin records a rejected login.
func (c *RequestCounters) ObserveFailedLogin() {
	c.mu.Lock()
	c.failedLogins++
	c.mu.Unlock()
}

// ObserveSuspicious records a request that looked like probing.
func (c *RequestCounters) ObserveSuspicious() {
	c.mu.Lock()
	c.suspicious++
	c.mu.Unlock()
}

// Name implements Collector.
func (c *RequestCounters) Name() string { return "requests" }

// Collect reports the current window and starts a new one.
func (c *RequestCounters) Collect(ctx context.Context) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	minutes := now.Sub(c.windowStart).Minutes()

	avg, errRate, perMinute := 0.0, 0.0, 0.0
	if c.requests > 0 {
		avg = float64(c.latency.Microseconds()) / 1000 / float64(c.requests)
		errRate = float64(c.errors) / float64(c.requests) * 100
	}
	if minutes > 0 {
		perMinute = float64(c.requests) / minutes
	}

	values := map[string]interface{}{
		model.MetricAvgResponseTimeMs:  avg,
		model.MetricErrorRate:          errRate,
		model.MetricRequestsPerMinute:  perMinute,
		model.MetricFailedLogins:       c.failedLogins,
		model.MetricSuspiciousRequests: c.suspicious,
	}

	c.requests, c.errors, c.latency = 0, 0, 0
	c.failedLogins, c.suspicious = 0, 0
	c.windowStart = now
	return values, nil
}

// Degraded is never used; in-process counters cannot fail.
func (c *RequestCounters) Degraded() map[string]interface{} {
	return map[string]interface{}{}
}
