package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/vaultstat/internal/domain"
)

// SnapshotGenerator defines the interface for generating snapshots.
type SnapshotGenerator interface {
	Generate(ctx context.Context, network string, date time.Time) (domain.ProtocolEarningsReport, error)
}

// AfterSnapshotHook is called after each successful snapshot generation.
type AfterSnapshotHook interface {
	Export(ctx context.Context, report domain.ProtocolEarningsReport) error
}

// ReportWorker periodically generates protocol earnings snapshots.
type ReportWorker struct {
	generator SnapshotGenerator
	network   string
	interval  time.Duration
	hooks     []AfterSnapshotHook
}

// NewReportWorker creates a new ReportWorker with optional post-generation hooks.
func NewReportWorker(generator SnapshotGenerator, network string, interval time.Duration, hooks ...AfterSnapshotHook) *ReportWorker {
	return &ReportWorker{
		generator: generator,
		network:   network,
		interval:  interval,
		hooks:     hooks,
	}
}

// runHooks calls every configured post-generation hook. A failing hook does not stop the others.
func (w *ReportWorker) runHooks(ctx context.Context, report domain.ProtocolEarningsReport) {
	for _, h := range w.hooks {
		if err := h.Export(ctx, report); err != nil {
			slog.Error("ReportWorker: export hook failed", "error", err)
		} else {
			slog.Info("ReportWorker: export hook completed")
		}
	}
}

// utcDate returns the current date normalized to midnight UTC.
func utcDate() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (w *ReportWorker) generate(ctx context.Context, phase string) {
	report, err := w.generator.Generate(ctx, w.network, utcDate())
	if err != nil {
		slog.Error("ReportWorker: "+phase+" failed", "network", w.network, "error", err)
		return
	}
	slog.Info("ReportWorker: "+phase+" completed",
		"network", w.network,
		"assets", len(report.Assets),
		"faults", len(report.Faults),
		"total_usd", report.TotalEarnedUsd.String())
	w.runHooks(ctx, report)
}

// Run starts the report worker loop. It blocks until the context is cancelled.
func (w *ReportWorker) Run(ctx context.Context) {
	slog.Info("ReportWorker: starting", "network", w.network, "interval", w.interval)

	// Generate immediately on startup
	w.generate(ctx, "initial generation")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ReportWorker: shutting down")
			return
		case <-ticker.C:
			w.generate(ctx, "generation")
		}
	}
}
