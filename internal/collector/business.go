package collector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/storage"
)

// OrderRepository answers the order questions the business rules need.
type OrderRepository interface {
	PendingOrders(ctx context.Context) (int, error)
	OrdersSince(ctx context.Context, since time.Time) (int, error)
	CancelledSince(ctx context.Context, since time.Time) (int, error)
	AvgDeliveryMinutes(ctx context.Context, since time.Time) (float64, error)
}

// BusinessCollector reports order flow metrics.
type BusinessCollector struct {
	repo      OrderRepository
	openHour  int
	closeHour int
	now       func() time.Time
}

// NewBusinessCollector 创建业务指标收集器; 营业时间为 [openHour, closeHour),
// openHour > closeHour 表示跨午夜营业 (如 18 到 1)
func NewBusinessCollector(repo OrderRepository, openHour, closeHour int) *BusinessCollector {
	return &BusinessCollector{repo: repo, openHour: openHour, closeHour: closeHour, now: time.Now}
}

// Name implements Collector.
func (c *BusinessCollector) Name() string { return "business" }

// InBusinessHours reports whether t falls inside opening hours.
func (c *BusinessCollector) InBusinessHours(t time.Time) bool {
	h := t.Hour()
	if c.openHour > c.closeHour {
		return h >= c.openHour || h < c.closeHour
	}
	return h >= c.openHour && h < c.closeHour
}

// Collect queries the repository. Any failing query fails the collector.
func (c *BusinessCollector) Collect(ctx context.Context) (map[string]interface{}, error) {
	now := c.now()
	hourAgo := now.Add(-time.Hour)

	pending, err := c.repo.PendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending orders: %w", err)
	}
	lastHour, err := c.repo.OrdersSince(ctx, hourAgo)
	if err != nil {
		return nil, fmt.Errorf("orders last hour: %w", err)
	}
	cancelled, err := c.repo.CancelledSince(ctx, hourAgo)
	if err != nil {
		return nil, fmt.Errorf("cancelled orders: %w", err)
	}
	delivery, err := c.repo.AvgDeliveryMinutes(ctx, now.Add(-2*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("delivery time: %w", err)
	}

	return map[string]interface{}{
		model.MetricPendingOrders:      pending,
		model.MetricOrdersLastHour:     lastHour,
		model.MetricCancelledLastHour:  cancelled,
		model.MetricAvgDeliveryMinutes: delivery,
		model.MetricBusinessHours:      c.InBusinessHours(now),
	}, nil
}

// Degraded reports -1 for every order metric.
func (c *BusinessCollector) Degraded() map[string]interface{} {
	return map[string]interface{}{
		model.MetricPendingOrders:      -1,
		model.MetricOrdersLastHour:     -1,
		model.MetricCancelledLastHour:  -1,
		model.MetricAvgDeliveryMinutes: -1,
		model.MetricBusinessHours:      c.InBusinessHours(c.now()),
	}
}

// SQLOrderRepository reads the storefront's orders table.
type SQLOrderRepository struct {
	db      *sql.DB
	dialect storage.Dialect
	table   string
	observe func(time.Duration)
}

// NewSQLOrderRepository 创建订单仓库
func NewSQLOrderRepository(db *sql.DB, dialect storage.Dialect) *SQLOrderRepository {
	return &SQLOrderRepository{db: db, dialect: dialect, table: "orders"}
}

// ObserveWith reports every query duration to fn, typically
// DatabaseCollector.ObserveQuery.
func (r *SQLOrderRepository) ObserveWith(fn func(time.Duration)) *SQLOrderRepository {
	r.observe = fn
	return r
}

func (r *SQLOrderRepository) timed(start time.Time) {
	if r.observe != nil {
		r.observe(time.Since(start))
	}
}

// PendingOrders counts orders not yet out for delivery.
func (r *SQLOrderRepository) PendingOrders(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status IN ('pending', 'confirmed', 'preparing')", r.table)
	return r.count(ctx, query)
}

// OrdersSince counts orders created after since.
func (r *SQLOrderRepository) OrdersSince(ctx context.Context, since time.Time) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE created_at >= %s", r.table, r.dialect.Placeholder(1))
	return r.count(ctx, query, since.UTC())
}

// CancelledSince counts orders cancelled after since.
func (r *SQLOrderRepository) CancelledSince(ctx context.Context, since time.Time) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = 'cancelled' AND created_at >= %s", r.table, r.dialect.Placeholder(1))
	return r.count(ctx, query, since.UTC())
}

// AvgDeliveryMinutes averages created-to-delivered time for orders
// delivered after since. No deliveries yields 0.
func (r *SQLOrderRepository) AvgDeliveryMinutes(ctx context.Context, since time.Time) (float64, error) {
	query := fmt.Sprintf(
		"SELECT created_at, delivered_at FROM %s WHERE status = 'delivered' AND delivered_at IS NOT NULL AND delivered_at >= %s",
		r.table, r.dialect.Placeholder(1))
	defer r.timed(time.Now())
	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total time.Duration
	n := 0
	for rows.Next() {
		var created, delivered time.Time
		if err := rows.Scan(&created, &delivered); err != nil {
			return 0, err
		}
		total += delivered.Sub(created)
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return total.Minutes() / float64(n), nil
}

func (r *SQLOrderRepository) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	defer r.timed(time.Now())
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
