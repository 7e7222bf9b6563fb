package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/deskflow/internal/routing"
	"github.com/hyperengineering/deskflow/internal/types"
)

// AlertScanner periodically re-runs the alert scan and caches the result
// so dashboard reads do not pay the scan cost on every request.
type AlertScanner struct {
	src      routing.AlertSource
	cfg      routing.AlertConfig
	interval time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	current []types.Alert
	scanned time.Time
}

// NewAlertScanner creates a scanner. now is injectable for tests.
func NewAlertScanner(src routing.AlertSource, cfg routing.AlertConfig, interval time.Duration, now func() time.Time) *AlertScanner {
	if now == nil {
		now = time.Now
	}
	return &AlertScanner{src: src, cfg: cfg, interval: interval, now: now}
}

// Current returns the most recent scan result and when it was taken.
func (s *AlertScanner) Current() ([]types.Alert, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.scanned
}

// Run starts the scan loop. It blocks until ctx is cancelled. The first
// scan runs immediately so the dashboard has data as soon as the server
// is up.
func (s *AlertScanner) Run(ctx context.Context) {
	slog.Info("alert scanner started",
		"component", "worker",
		"worker", "alert-scanner",
		"interval", s.interval.String(),
	)

	s.scanOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("alert scanner stopped",
				"component", "worker",
				"worker", "alert-scanner",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *AlertScanner) scanOnce(ctx context.Context) {
	start := s.now()
	alerts, err := routing.ScanAlerts(ctx, s.src, s.cfg, start)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("alert scan failed",
				"component", "worker",
				"worker", "alert-scanner",
				"error", err,
			)
		}
		return
	}

	s.mu.Lock()
	s.current = alerts
	s.scanned = start
	s.mu.Unlock()

	if len(alerts) > 0 {
		slog.Info("alert scan completed",
			"component", "worker",
			"worker", "alert-scanner",
			"alerts", len(alerts),
		)
	}
}
