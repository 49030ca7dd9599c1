package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/storage"
)

type fakeOrders struct {
	pending, lastHour, cancelled int
	delivery                     float64
	err                          error
}

func (f *fakeOrders) PendingOrders(ctx context.Context) (int, error) { return f.pending, f.err }
func (f *fakeOrders) OrdersSince(ctx context.Context, since time.Time) (int, error) {
	return f.lastHour, nil
}
func (f *fakeOrders) CancelledSince(ctx context.Context, since time.Time) (int, error) {
	return f.cancelled, nil
}
func (f *fakeOrders) AvgDeliveryMinutes(ctx context.Context, since time.Time) (float64, error) {
	return f.delivery, nil
}

func TestBusinessCollector_Collect(t *testing.T) {
	c := NewBusinessCollector(&fakeOrders{pending: 7, lastHour: 15, cancelled: 1, delivery: 38.5}, 11, 23)
	c.now = func() time.Time { return time.Date(2024, 5, 10, 20, 30, 0, 0, time.UTC) }

	values, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, values[model.MetricPendingOrders])
	assert.Equal(t, 15, values[model.MetricOrdersLastHour])
	assert.Equal(t, 1, values[model.MetricCancelledLastHour])
	assert.Equal(t, 38.5, values[model.MetricAvgDeliveryMinutes])
	assert.Equal(t, true, values[model.MetricBusinessHours])
}

func TestBusinessCollector_FailureAndDegraded(t *testing.T) {
	c := NewBusinessCollector(&fakeOrders{err: errors.New("no such table: orders")}, 11, 23)
	c.now = func() time.Time { return time.Date(2024, 5, 10, 3, 0, 0, 0, time.UTC) }

	_, err := c.Collect(context.Background())
	assert.ErrorContains(t, err, "pending orders")

	degraded := c.Degraded()
	assert.Equal(t, -1, degraded[model.MetricPendingOrders])
	assert.Equal(t, false, degraded[model.MetricBusinessHours])
}

func TestBusinessCollector_InBusinessHours(t *testing.T) {
	c := NewBusinessCollector(nil, 11, 23)
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	assert.False(t, c.InBusinessHours(day.Add(10*time.Hour+59*time.Minute)))
	assert.True(t, c.InBusinessHours(day.Add(11*time.Hour)))
	assert.True(t, c.InBusinessHours(day.Add(22*time.Hour+59*time.Minute)))
	assert.False(t, c.InBusinessHours(day.Add(23*time.Hour)))
}

func TestBusinessCollector_OvernightHours(t *testing.T) {
	c := NewBusinessCollector(nil, 18, 1)
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	assert.False(t, c.InBusinessHours(day.Add(17*time.Hour+59*time.Minute)))
	assert.True(t, c.InBusinessHours(day.Add(18*time.Hour)))
	assert.True(t, c.InBusinessHours(day.Add(23*time.Hour+30*time.Minute)))
	assert.True(t, c.InBusinessHours(day.Add(30*time.Minute)))
	assert.False(t, c.InBusinessHours(day.Add(1*time.Hour)))
	assert.False(t, c.InBusinessHours(day.Add(12*time.Hour)))
}

func TestSQLOrderRepository(t *testing.T) {
	db, dialect, err := storage.Open("sqlite", ":memory:", storage.DefaultPoolConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		delivered_at TIMESTAMP NULL
	)`)
	require.NoError(t, err)

	now := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	insert := func(status string, created time.Time, delivered *time.Time) {
		_, err := db.ExecContext(ctx, "INSERT INTO orders (status, created_at, delivered_at) VALUES (?, ?, ?)", status, created, delivered)
		require.NoError(t, err)
	}
	deliveredA := now.Add(-30 * time.Minute)
	deliveredB := now.Add(-10 * time.Minute)
	insert("pending", now.Add(-5*time.Minute), nil)
	insert("preparing", now.Add(-20*time.Minute), nil)
	insert("cancelled", now.Add(-40*time.Minute), nil)
	insert("delivered", deliveredA.Add(-40*time.Minute), &deliveredA)
	insert("delivered", deliveredB.Add(-20*time.Minute), &deliveredB)
	insert("delivered", now.Add(-5*time.Hour), nil)

	var observed int
	repo := NewSQLOrderRepository(db, dialect).ObserveWith(func(time.Duration) { observed++ })

	pending, err := repo.PendingOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	lastHour, err := repo.OrdersSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, lastHour)

	cancelled, err := repo.CancelledSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	avg, err := repo.AvgDeliveryMinutes(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 30.0, avg, 0.001)

	assert.Equal(t, 4, observed)
}
