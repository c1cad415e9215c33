package worker

import (
	"context"
	"log/slog"
	"time"
)

// Pruner drops expired cache entries.
type Pruner interface {
	Prune() int
}

// PruneWorker periodically evicts expired entries from an in-process cache.
type PruneWorker struct {
	pruner   Pruner
	interval time.Duration
}

// NewPruneWorker creates a new PruneWorker.
func NewPruneWorker(pruner Pruner, interval time.Duration) *PruneWorker {
	return &PruneWorker{
		pruner:   pruner,
		interval: interval,
	}
}

// Run starts the prune loop. It blocks until the context is cancelled.
func (w *PruneWorker) Run(ctx context.Context) {
	slog.Info("PruneWorker: starting", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("PruneWorker: shutting down")
			return
		case <-ticker.C:
			if n := w.pruner.Prune(); n > 0 {
				slog.Debug("PruneWorker: evicted expired entries", "count", n)
			}
		}
	}
}
