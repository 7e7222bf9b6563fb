package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hyperengineering/deskflow/internal/export"
	"github.com/hyperengineering/deskflow/internal/types"
)

// ScheduleExporter periodically publishes the upcoming schedule window.
type ScheduleExporter struct {
	exporter     export.Exporter
	src          export.Source
	interval     time.Duration
	horizonWeeks int
	now          func() time.Time
}

// NewScheduleExporter creates an exporter loop. now is injectable for tests.
func NewScheduleExporter(e export.Exporter, src export.Source, interval time.Duration, horizonWeeks int, now func() time.Time) *ScheduleExporter {
	if now == nil {
		now = time.Now
	}
	return &ScheduleExporter{
		exporter:     e,
		src:          src,
		interval:     interval,
		horizonWeeks: horizonWeeks,
		now:          now,
	}
}

// Run starts the export loop. It blocks until ctx is cancelled. The first
// export runs immediately so a fresh deploy publishes right away.
func (e *ScheduleExporter) Run(ctx context.Context) {
	slog.Info("schedule exporter started",
		"component", "worker",
		"worker", "schedule-exporter",
		"interval", e.interval.String(),
		"horizon_weeks", e.horizonWeeks,
	)

	e.ExportOnce(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("schedule exporter stopped",
				"component", "worker",
				"worker", "schedule-exporter",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			e.ExportOnce(ctx)
		}
	}
}

// ExportOnce publishes a single snapshot starting from today.
func (e *ScheduleExporter) ExportOnce(ctx context.Context) {
	start := e.now()
	key, err := e.exporter.Export(ctx, e.src, types.DateOf(start.UTC()), e.horizonWeeks)
	if err != nil {
		// Not configured means export stays off; no point logging a
		// failure every tick.
		if errors.Is(err, export.ErrNotConfigured) || ctx.Err() != nil {
			return
		}
		slog.Error("schedule export failed",
			"component", "worker",
			"worker", "schedule-exporter",
			"error", err,
		)
		return
	}

	slog.Info("schedule export completed",
		"component", "worker",
		"worker", "schedule-exporter",
		"object_key", key,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
