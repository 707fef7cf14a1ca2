package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("go.perf_stats")
var cpuGauge, _ = meter.Float64Gauge("cpu_usage")
var memoryGauge, _ = meter.Int64Gauge("allocated_mb")
var liveObjectsGauge, _ = meter.Int64Gauge("live_objects")
var goroutineGauge, _ = meter.Int64Gauge("goroutine_count")

type PerfSample struct {
	CPUPercent  float64
	AllocatedMB int64
	LiveObjects int64
	Goroutines  int64
}

// SamplePerfStats reads the process counters and records them on the gauges.
// cpuWindow is how long CPU usage is measured over.
func SamplePerfStats(ctx context.Context, cpuWindow time.Duration) PerfSample {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sample := PerfSample{
		AllocatedMB: int64(memStats.Alloc / 1_000_000),
		LiveObjects: int64(memStats.Mallocs) - int64(memStats.Frees),
		Goroutines:  int64(runtime.NumGoroutine()),
	}

	cpuUsage, err := cpu.PercentWithContext(ctx, cpuWindow, false)
	if err == nil && len(cpuUsage) > 0 {
		sample.CPUPercent = cpuUsage[0]
		cpuGauge.Record(ctx, sample.CPUPercent)
	} else if err != nil {
		slog.DebugContext(ctx, "failed to read cpu usage", "err", err)
	}

	memoryGauge.Record(ctx, sample.AllocatedMB)
	liveObjectsGauge.Record(ctx, sample.LiveObjects)
	goroutineGauge.Record(ctx, sample.Goroutines)
	return sample
}

// InstrumentPerfStats samples every interval until ctx is done.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				SamplePerfStats(ctx, time.Second)
			case <-ctx.Done():
				return
			}
		}
	}()
}
