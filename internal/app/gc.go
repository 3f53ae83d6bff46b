package app

import (
	"context"
	"time"

	"xsync-go/internal/xsync"
)

// Collector runs garbage collection passes.
type Collector interface {
	CollectGarbage(ctx context.Context) (xsync.GCReport, error)
}

// RunGC calls c.CollectGarbage every interval until ctx is done. A
// non-positive interval disables the loop. Failed passes are logged and
// retried on the next tick.
func RunGC(ctx context.Context, c Collector, interval time.Duration, logger xsync.Logger) {
	if interval <= 0 {
		logger.Info("periodic garbage collection disabled")
		return
	}
	logger = logger.With("component", "gc")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := c.CollectGarbage(ctx)
			if err != nil {
				logger.Error("garbage collection failed", "deleted", report.Deleted, "error", err)
				continue
			}
			if report.Deleted > 0 {
				logger.Info("garbage collected", "deleted", report.Deleted, "freed_bytes", report.BytesFreed)
			}
		}
	}
}
