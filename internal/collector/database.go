package collector

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/y001j/pizzeria-alerts/internal/model"
)

// Pinger is the part of *sql.DB the database collector uses.
type Pinger interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// DatabaseCollector checks the storefront database for connectivity,
// latency and pool pressure.
type DatabaseCollector struct {
	db        Pinger
	slowAfter time.Duration

	mu        sync.Mutex
	slow      int
	lastWaits int64
}

// NewDatabaseCollector 创建数据库指标收集器
func NewDatabaseCollector(db Pinger, slowAfter time.Duration) *DatabaseCollector {
	if slowAfter <= 0 {
		slowAfter = time.Second
	}
	return &DatabaseCollector{db: db, slowAfter: slowAfter}
}

// Name implements Collector.
func (c *DatabaseCollector) Name() string { return "database" }

// ObserveQuery counts a query toward the slow query metric when it took
// longer than the threshold. Application code may call it.
func (c *DatabaseCollector) ObserveQuery(d time.Duration) {
	if d < c.slowAfter {
		return
	}
	c.mu.Lock()
	c.slow++
	c.mu.Unlock()
}

// Collect pings the database and reads pool stats. The slow query and wait
// counters are reported as deltas since the previous collect.
func (c *DatabaseCollector) Collect(ctx context.Context) (map[string]interface{}, error) {
	start := time.Now()
	if err := c.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	elapsed := time.Since(start)
	c.ObserveQuery(elapsed)

	stats := c.db.Stats()
	usage := 0.0
	if stats.MaxOpenConnections > 0 {
		usage = float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	}

	c.mu.Lock()
	slow := c.slow
	c.slow = 0
	waits := stats.WaitCount - c.lastWaits
	if waits < 0 {
		waits = stats.WaitCount
	}
	c.lastWaits = stats.WaitCount
	c.mu.Unlock()

	return map[string]interface{}{
		model.MetricDBConnectionFailed: false,
		model.MetricDBResponseTimeMs:   float64(elapsed.Microseconds()) / 1000,
		model.MetricDBPoolUsage:        usage,
		model.MetricDBWaitCount:        waits,
		model.MetricDBSlowQueries:      slow,
	}, nil
}

// Degraded marks the connection as failed and the other database metrics
// as -1.
func (c *DatabaseCollector) Degraded() map[string]interface{} {
	return map[string]interface{}{
		model.MetricDBConnectionFailed: true,
		model.MetricDBResponseTimeMs:   -1,
		model.MetricDBPoolUsage:        -1,
		model.MetricDBWaitCount:        -1,
		model.MetricDBSlowQueries:      -1,
	}
}
