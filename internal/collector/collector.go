// Package collector gathers the metrics snapshot evaluated on every tick.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

// Collector produces part of a snapshot.
type Collector interface {
	// Name identifies the collector in logs.
	Name() string
	// Collect returns metric name to number or bool.
	Collect(ctx context.Context) (map[string]interface{}, error)
	// Degraded is used in place of Collect's result when it fails or
	// times out.
	Degraded() map[string]interface{}
}

// Supplier runs collectors concurrently and merges their results into one
// snapshot. It never fails: a broken collector contributes its degraded
// values instead.
type Supplier struct {
	mu         sync.RWMutex
	collectors []Collector
	timeout    time.Duration
	now        func() time.Time
}

// NewSupplier creates a supplier bounding each collector by timeout.
func NewSupplier(timeout time.Duration, collectors ...Collector) *Supplier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Supplier{collectors: collectors, timeout: timeout, now: time.Now}
}

// Add registers another collector.
func (s *Supplier) Add(c Collector) {
	s.mu.Lock()
	s.collectors = append(s.collectors, c)
	s.mu.Unlock()
}

// Collectors returns the registered collectors.
func (s *Supplier) Collectors() []Collector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Collector, len(s.collectors))
	copy(out, s.collectors)
	return out
}

// Snapshot collects from every collector in parallel.
func (s *Supplier) Snapshot(ctx context.Context) model.Snapshot {
	collectors := s.Collectors()
	parts := make([]map[string]interface{}, len(collectors))

	var wg sync.WaitGroup
	for i, c := range collectors {
		wg.Add(1)
		go func(i int, c Collector) {
			defer wg.Done()
			parts[i] = s.collectOne(ctx, c)
		}(i, c)
	}
	wg.Wait()

	// Merge in registration order so later collectors win on conflicts.
	values := make(map[string]interface{})
	for _, part := range parts {
		for k, v := range part {
			values[k] = v
		}
	}
	return model.NewSnapshot(s.now(), values)
}

type result struct {
	values map[string]interface{}
	err    error
}

func (s *Supplier) collectOne(ctx context.Context, c Collector) map[string]interface{} {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("collector panic: %v", r)}
			}
		}()
		values, err := c.Collect(cctx)
		ch <- result{values: values, err: err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-cctx.Done():
		res = result{err: cctx.Err()}
	}

	if res.err != nil {
		log.Warn().Err(res.err).Str("collector", c.Name()).Msg("metrics collection failed, using degraded values")
		return c.Degraded()
	}
	return res.values
}

// Static is a fixed collector, handy for wiring fakes and constants.
type Static struct {
	CollectorName string
	Values        map[string]interface{}
	Err           error
	Fallback      map[string]interface{}
}

// Name implements Collector.
func (s *Static) Name() string { return s.CollectorName }

// Collect implements Collector.
func (s *Static) Collect(ctx context.Context) (map[string]interface{}, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Values, nil
}

// Degraded implements Collector.
func (s *Static) Degraded() map[string]interface{} { return s.Fallback }
