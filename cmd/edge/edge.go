package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/config"
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/RoGogDBD/sparkplug-b/internal/repository"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Префикс системных метрик edge-узла.
const systemPrefix = "System/"

// defineMetrics объявляет в реестре метрики из конфигурации.
func defineMetrics(reg *repository.Registry, defs []config.MetricDef) error {
	for _, d := range defs {
		t, err := models.ParseDataType(d.Type)
		if err != nil {
			return fmt.Errorf("metric %q: %w", d.Name, err)
		}
		var opts []repository.MetricOption
		if d.Alias != nil {
			opts = append(opts, repository.WithAlias(*d.Alias))
		}
		if d.Value != "" {
			v, err := models.ParseValue(t, d.Value)
			if err != nil {
				return fmt.Errorf("metric %q: %w", d.Name, err)
			}
			opts = append(opts, repository.WithValue(v))
		}
		if err := reg.AddMetric(d.Name, t, opts...); err != nil {
			return err
		}
	}
	return nil
}

// systemMetric — системная метрика и способ её получения.
type systemMetric struct {
	name     string
	datatype models.DataType
}

var runtimeMetrics = []systemMetric{
	{"Alloc", models.UInt64},
	{"HeapAlloc", models.UInt64},
	{"HeapInuse", models.UInt64},
	{"HeapObjects", models.UInt64},
	{"Sys", models.UInt64},
	{"NumGC", models.UInt32},
	{"NumGoroutine", models.Int32},
	{"PollCount", models.Int64},
	{"TotalMemory", models.UInt64},
	{"FreeMemory", models.UInt64},
	{"CPUUtilization", models.Double},
}

// SystemCollector собирает runtime.MemStats и показатели хоста через gopsutil.
type SystemCollector struct {
	pollCount int64
	aliasBase uint64
}

// NewSystemCollector создаёт сборщик. Алиасы системных метрик начинаются с aliasBase.
func NewSystemCollector(aliasBase uint64) *SystemCollector {
	return &SystemCollector{aliasBase: aliasBase}
}

// Define объявляет системные метрики в реестре.
func (c *SystemCollector) Define(reg *repository.Registry) error {
	for i, m := range runtimeMetrics {
		if reg.HasMetric(systemPrefix + m.name) {
			continue
		}
		if err := reg.AddMetric(systemPrefix+m.name, m.datatype, repository.WithAlias(c.aliasBase+uint64(i))); err != nil {
			return err
		}
	}
	return nil
}

// Collect снимает текущие значения. Ошибки gopsutil пропускают соответствующие метрики.
func (c *SystemCollector) Collect(ctx context.Context) map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	c.pollCount++

	out := map[string]any{
		systemPrefix + "Alloc":        ms.Alloc,
		systemPrefix + "HeapAlloc":    ms.HeapAlloc,
		systemPrefix + "HeapInuse":    ms.HeapInuse,
		systemPrefix + "HeapObjects":  ms.HeapObjects,
		systemPrefix + "Sys":          ms.Sys,
		systemPrefix + "NumGC":        ms.NumGC,
		systemPrefix + "NumGoroutine": runtime.NumGoroutine(),
		systemPrefix + "PollCount":    c.pollCount,
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out[systemPrefix+"TotalMemory"] = vm.Total
		out[systemPrefix+"FreeMemory"] = vm.Free
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		out[systemPrefix+"CPUUtilization"] = pct[0]
	}
	return out
}

// apply записывает собранные значения в реестр с общей отметкой времени.
func apply(reg *repository.Registry, values map[string]any) error {
	ts := models.NowMillis()
	for name, v := range values {
		if err := reg.SetValueAt(name, v, ts); err != nil {
			return err
		}
	}
	return nil
}

// pollLoop раз в interval собирает системные метрики и передаёт их в post.
func pollLoop(ctx context.Context, c *SystemCollector, interval time.Duration, post func(map[string]any)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			post(c.Collect(ctx))
		}
	}
}
