package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type perfGauges struct {
	cpu        metric.Float64Gauge
	heapMB     metric.Int64Gauge
	goroutines metric.Int64Gauge
}

func (g perfGauges) sample(ctx context.Context) {
	usage, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		slog.Debug("read cpu usage", "err", err)
	} else if len(usage) > 0 {
		g.cpu.Record(ctx, usage[0])
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	g.heapMB.Record(ctx, int64(mem.HeapAlloc/1_000_000))
	g.goroutines.Record(ctx, int64(runtime.NumGoroutine()))
}

// InstrumentPerfStats records process cpu, heap and goroutine gauges every
// interval until ctx is done.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) {
	meter := otel.Meter("gradewatch.perf_stats")
	var g perfGauges
	g.cpu, _ = meter.Float64Gauge("cpu_usage")
	g.heapMB, _ = meter.Int64Gauge("heap_mb")
	g.goroutines, _ = meter.Int64Gauge("goroutines")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.sample(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
