// Package debug holds diagnostics enabled by the debug config flag.
package debug

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"

	"github.com/dustin/go-humanize"
)

// StartRuntimeLogger logs goroutine count, stack and heap usage and the
// process peak RSS every interval until ctx is done. Long capture sessions
// use it to rule out leaks in frame buffers and the OCR library.
func StartRuntimeLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			metrics.Read(samples)
			goroutines := samples[0].Value.Uint64()
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			attrs := []any{
				slog.Uint64("goroutines", goroutines),
				slog.String("stack_inuse", humanize.IBytes(ms.StackInuse)),
				slog.String("heap_alloc", humanize.IBytes(ms.HeapAlloc)),
				slog.String("heap_sys", humanize.IBytes(ms.HeapSys)),
				slog.Uint64("num_gc", uint64(ms.NumGC)),
			}
			if rss, ok := peakRSS(); ok {
				attrs = append(attrs, slog.String("peak_rss", humanize.IBytes(rss)))
			}
			logger.Debug("runtime-stats", attrs...)
		}
	}()
}
