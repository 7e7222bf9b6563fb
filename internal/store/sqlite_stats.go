package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/hyperengineering/deskflow/internal/types"
)

// GetStats returns the dashboard projections: idea counts by status and
// tier, pullable evergreen depth per publication, and the count of items
// scheduled in the current Monday-to-Sunday week.
func (s *SQLiteStore) GetStats(ctx context.Context) (*types.RoutingStats, error) {
	now := time.Now().UTC()
	stats := &types.RoutingStats{
		IdeasByStatus:        make(map[string]int64),
		IdeasByTier:          make(map[string]int64),
		EvergreenQueueCounts: make(map[string]int64),
		StatsAsOf:            now,
	}

	byStatus := sq.Select("status", "COUNT(*)").
		From("idea_routing").
		GroupBy("status")
	if err := s.countInto(ctx, byStatus, stats.IdeasByStatus); err != nil {
		return nil, fmt.Errorf("ideas by status: %w", err)
	}

	byTier := sq.Select("tier", "COUNT(*)").
		From("idea_routing").
		Where(sq.NotEq{"tier": ""}).
		GroupBy("tier")
	if err := s.countInto(ctx, byTier, stats.IdeasByTier); err != nil {
		return nil, fmt.Errorf("ideas by tier: %w", err)
	}

	evergreen := sq.Select("publication_id", "COUNT(*)").
		From("evergreen_queue").
		Where(sq.Eq{"is_stale": 0}).
		Where("pulled_at IS NULL").
		GroupBy("publication_id")
	if err := s.countInto(ctx, evergreen, stats.EvergreenQueueCounts); err != nil {
		return nil, fmt.Errorf("evergreen counts: %w", err)
	}

	weekStart, weekEnd := currentWeek(now)
	query, args, err := sq.Select("COUNT(*)").
		From("schedule_entries").
		Where(sq.GtOrEq{"calendar_date": weekStart.String()}).
		Where(sq.LtOrEq{"calendar_date": weekEnd.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build week query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.ScheduledThisWeek); err != nil {
		return nil, fmt.Errorf("scheduled this week: %w", err)
	}

	return stats, nil
}

// countInto runs a two-column (key, count) grouped query into a map.
func (s *SQLiteStore) countInto(ctx context.Context, builder sq.SelectBuilder, into map[string]int64) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan count: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

// currentWeek returns the Monday and Sunday bracketing t.
func currentWeek(t time.Time) (types.Date, types.Date) {
	d := types.DateOf(t)
	// Weekday 0 is Sunday; shift so Monday starts the week.
	offset := (d.Weekday() + 6) % 7
	start := d.AddDays(-offset)
	return start, start.AddDays(6)
}
