package collector

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

// SystemCollector reads host metrics through gopsutil.
type SystemCollector struct {
	diskPath string
}

// NewSystemCollector 创建系统指标收集器
func NewSystemCollector(diskPath string) *SystemCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemCollector{diskPath: diskPath}
}

// Name implements Collector.
func (c *SystemCollector) Name() string { return "system" }

// Collect gathers cpu, memory, disk and load in parallel. Individual
// samplers that fail are left out; only a total failure is an error.
func (c *SystemCollector) Collect(ctx context.Context) (map[string]interface{}, error) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		values = map[string]interface{}{
			model.MetricGoroutines: runtime.NumGoroutine(),
		}
		errs []error
	)
	record := func(name string, v float64, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		values[name] = v
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		// Zero interval compares against the previous call instead of sleeping.
		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err == nil && len(percents) == 0 {
			err = fmt.Errorf("no cpu data")
		}
		if err != nil {
			record(model.MetricCPUUsage, 0, err)
			return
		}
		record(model.MetricCPUUsage, percents[0], nil)
	}()
	go func() {
		defer wg.Done()
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			record(model.MetricMemoryUsage, 0, err)
			return
		}
		record(model.MetricMemoryUsage, vm.UsedPercent, nil)
	}()
	go func() {
		defer wg.Done()
		usage, err := disk.UsageWithContext(ctx, c.diskPath)
		if err != nil {
			record(model.MetricDiskUsage, 0, err)
			return
		}
		record(model.MetricDiskUsage, usage.UsedPercent, nil)
	}()
	go func() {
		defer wg.Done()
		avg, err := load.AvgWithContext(ctx)
		if err != nil {
			record(model.MetricLoadAvg1, 0, err)
			return
		}
		record(model.MetricLoadAvg1, avg.Load1, nil)
	}()
	wg.Wait()

	if len(errs) == 4 {
		return nil, fmt.Errorf("all system samplers failed: %v", errs)
	}
	return values, nil
}

// Degraded reports only the goroutine count; host rules stay quiet.
func (c *SystemCollector) Degraded() map[string]interface{} {
	return map[string]interface{}{model.MetricGoroutines: runtime.NumGoroutine()}
}
