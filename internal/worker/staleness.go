// Package worker contains the background loops: evergreen staleness
// review, the periodic alert scan, and schedule export. Each worker runs
// on its own ticker and blocks until its context is cancelled.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/deskflow/internal/routing"
	"github.com/hyperengineering/deskflow/internal/types"
)

// StalenessStore defines the store operations the staleness review needs.
// Implemented by store.SQLiteStore.
type StalenessStore interface {
	routing.EvergreenStore
	ListPublications(ctx context.Context) ([]types.Publication, error)
	GetIdea(ctx context.Context, id string) (*types.Idea, error)
}

// StalenessReviewer periodically flags aged evergreen queue entries so
// they drop out of automatic pulls until re-scored.
type StalenessReviewer struct {
	store     StalenessStore
	evergreen *routing.EvergreenManager
	interval  time.Duration
	maxAge    time.Duration
	now       func() time.Time
}

// NewStalenessReviewer creates a reviewer. now is injectable for tests.
func NewStalenessReviewer(s StalenessStore, interval, maxAge time.Duration, now func() time.Time) *StalenessReviewer {
	if now == nil {
		now = time.Now
	}
	return &StalenessReviewer{
		store:     s,
		evergreen: routing.NewEvergreenManager(s, now, nil),
		interval:  interval,
		maxAge:    maxAge,
		now:       now,
	}
}

// Run starts the review loop. It blocks until ctx is cancelled. The first
// pass waits for the ticker interval; staleness moves on a daily clock so
// there is nothing to gain from scanning at startup.
func (r *StalenessReviewer) Run(ctx context.Context) {
	slog.Info("staleness reviewer started",
		"component", "worker",
		"worker", "staleness-reviewer",
		"interval", r.interval.String(),
		"max_age", r.maxAge.String(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("staleness reviewer stopped",
				"component", "worker",
				"worker", "staleness-reviewer",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			if _, err := r.ReviewOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("staleness review failed",
					"component", "worker",
					"worker", "staleness-reviewer",
					"error", err,
				)
			}
		}
	}
}

// ReviewOnce runs a single staleness pass over every publication's queue
// and returns the number of entries flagged.
func (r *StalenessReviewer) ReviewOnce(ctx context.Context) (int, error) {
	pubs, err := r.store.ListPublications(ctx)
	if err != nil {
		return 0, fmt.Errorf("list publications: %w", err)
	}

	now := r.now().UTC()
	var flagged int
	for _, pub := range pubs {
		if ctx.Err() != nil {
			return flagged, ctx.Err()
		}
		n, err := r.reviewQueue(ctx, pub.ID, now)
		if err != nil {
			slog.Error("queue review failed",
				"component", "worker",
				"worker", "staleness-reviewer",
				"publication_id", pub.ID,
				"error", err,
			)
			continue
		}
		flagged += n
	}

	if flagged > 0 {
		slog.Info("staleness review completed",
			"component", "worker",
			"worker", "staleness-reviewer",
			"entries_flagged", flagged,
		)
	}
	return flagged, nil
}

func (r *StalenessReviewer) reviewQueue(ctx context.Context, publicationID string, now time.Time) (int, error) {
	entries, err := r.store.ListEvergreenEntries(ctx, publicationID)
	if err != nil {
		return 0, fmt.Errorf("list evergreen entries: %w", err)
	}

	var flagged int
	for i := range entries {
		entry := entries[i]
		if entry.IsStale || entry.PulledAt != nil {
			continue
		}

		idea, err := r.store.GetIdea(ctx, entry.IdeaID)
		if err != nil {
			return flagged, fmt.Errorf("get idea %s: %w", entry.IdeaID, err)
		}

		if !routing.IsStaleCandidate(entry, idea.TimeSensitivity, now, r.maxAge) {
			continue
		}

		reason := fmt.Sprintf("queued %s without a pull", now.Sub(entry.AddedAt).Round(time.Hour))
		if err := r.evergreen.MarkStale(ctx, &entry, reason); err != nil {
			return flagged, fmt.Errorf("mark stale %s: %w", entry.ID, err)
		}
		flagged++
	}
	return flagged, nil
}
