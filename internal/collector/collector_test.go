package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

type slowCollector struct{}

func (slowCollector) Name() string { return "slow" }

func (slowCollector) Collect(ctx context.Context) (map[string]interface{}, error) {
	<-ctx.Done()
	time.Sleep(10 * time.Millisecond)
	return map[string]interface{}{"late": true}, nil
}

func (slowCollector) Degraded() map[string]interface{} {
	return map[string]interface{}{"late": false}
}

type panickyCollector struct{}

func (panickyCollector) Name() string { return "panicky" }

func (panickyCollector) Collect(ctx context.Context) (map[string]interface{}, error) {
	panic("nil map")
}

func (panickyCollector) Degraded() map[string]interface{} {
	return map[string]interface{}{"panicky": -1}
}

func TestSupplier_MergesInRegistrationOrder(t *testing.T) {
	s := NewSupplier(time.Second,
		&Static{CollectorName: "a", Values: map[string]interface{}{"x": 1, "shared": 10}},
		&Static{CollectorName: "b", Values: map[string]interface{}{"y": 2, "shared": 20}},
	)
	snap := s.Snapshot(context.Background())

	assert.Equal(t, 1.0, snap.Float("x"))
	assert.Equal(t, 2.0, snap.Float("y"))
	assert.Equal(t, 20.0, snap.Float("shared"))
}

func TestSupplier_FailingCollectorContributesDegradedValues(t *testing.T) {
	s := NewSupplier(time.Second,
		&Static{CollectorName: "db", Err: errors.New("connection refused"), Fallback: map[string]interface{}{
			model.MetricDBConnectionFailed: true,
		}},
		&Static{CollectorName: "ok", Values: map[string]interface{}{model.MetricCPUUsage: 12.0}},
	)
	snap := s.Snapshot(context.Background())

	assert.True(t, snap.Bool(model.MetricDBConnectionFailed))
	assert.Equal(t, 12.0, snap.Float(model.MetricCPUUsage))
}

func TestSupplier_TimeoutAndPanicAreContained(t *testing.T) {
	s := NewSupplier(20*time.Millisecond)
	s.Add(slowCollector{})
	s.Add(panickyCollector{})
	assert.Len(t, s.Collectors(), 2)

	start := time.Now()
	snap := s.Snapshot(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, snap.Has("late"))
	assert.False(t, snap.Bool("late"))
	assert.Equal(t, -1.0, snap.Float("panicky"))
}

func TestRequestCounters_WindowResetsOnCollect(t *testing.T) {
	c := NewRequestCounters()
	base := time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC)
	c.windowStart = base
	c.now = func() time.Time { return base.Add(2 * time.Minute) }

	c.ObserveRequest(200, 100*time.Millisecond)
	c.ObserveRequest(200, 200*time.Millisecond)
	c.ObserveRequest(503, 300*time.Millisecond)
	c.ObserveRequest(404, 400*time.Millisecond)
	c.ObserveFailedLogin()
	c.ObserveSuspicious()
	c.ObserveSuspicious()

	values, err := c.Collect(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, 250.0, values[model.MetricAvgResponseTimeMs], 0.001)
	assert.InDelta(t, 25.0, values[model.MetricErrorRate], 0.001)
	assert.InDelta(t, 2.0, values[model.MetricRequestsPerMinute], 0.001)
	assert.Equal(t, 1, values[model.MetricFailedLogins])
	assert.Equal(t, 2, values[model.MetricSuspiciousRequests])

	values, _ = c.Collect(context.Background())
	assert.Equal(t, 0.0, values[model.MetricAvgResponseTimeMs])
	assert.Equal(t, 0, values[model.MetricFailedLogins])
}
