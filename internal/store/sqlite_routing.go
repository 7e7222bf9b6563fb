package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/deskflow/internal/routing"
	"github.com/hyperengineering/deskflow/internal/types"
	"github.com/oklog/ulid/v2"
)

// CreateIdea persists a captured idea.
func (s *SQLiteStore) CreateIdea(ctx context.Context, idea *types.Idea) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ideas (
			id, title, audience, action, time_sensitivity, resource_type, angle,
			estimated_length, preassigned_format,
			can_frame_as_complete_guide, is_foundational, has_contrarian_angle,
			has_personal_story, has_data_backing, is_series_candidate,
			needs_visual_demo, is_timely_reference, requires_confirmation,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		idea.ID, idea.Title, idea.Audience, idea.Action, idea.TimeSensitivity,
		idea.ResourceType, idea.Angle, idea.EstimatedLength, idea.PreassignedFormat,
		boolToInt(idea.CanFrameAsCompleteGuide), boolToInt(idea.IsFoundational),
		boolToInt(idea.HasContrarianAngle), boolToInt(idea.HasPersonalStory),
		boolToInt(idea.HasDataBacking), boolToInt(idea.IsSeriesCandidate),
		boolToInt(idea.NeedsVisualDemo), boolToInt(idea.IsTimelyReference),
		boolToInt(idea.RequiresConfirmation),
		formatTime(idea.CreatedAt), formatTime(idea.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert idea: %w", err)
	}
	return nil
}

const ideaColumns = `id, title, audience, action, time_sensitivity, resource_type, angle,
	estimated_length, preassigned_format,
	can_frame_as_complete_guide, is_foundational, has_contrarian_angle,
	has_personal_story, has_data_backing, is_series_candidate,
	needs_visual_demo, is_timely_reference, requires_confirmation,
	created_at, updated_at`

func scanIdea(scanner interface{ Scan(...any) error }) (*types.Idea, error) {
	var idea types.Idea
	var createdAt, updatedAt string
	var guide, foundational, contrarian, personal, data, series, visual, timely, confirm int

	err := scanner.Scan(
		&idea.ID, &idea.Title, &idea.Audience, &idea.Action, &idea.TimeSensitivity,
		&idea.ResourceType, &idea.Angle, &idea.EstimatedLength, &idea.PreassignedFormat,
		&guide, &foundational, &contrarian, &personal, &data, &series, &visual, &timely, &confirm,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	idea.CanFrameAsCompleteGuide = guide != 0
	idea.IsFoundational = foundational != 0
	idea.HasContrarianAngle = contrarian != 0
	idea.HasPersonalStory = personal != 0
	idea.HasDataBacking = data != 0
	idea.IsSeriesCandidate = series != 0
	idea.NeedsVisualDemo = visual != 0
	idea.IsTimelyReference = timely != 0
	idea.RequiresConfirmation = confirm != 0
	idea.CreatedAt = parseTime(createdAt)
	idea.UpdatedAt = parseTime(updatedAt)
	return &idea, nil
}

// GetIdea retrieves an idea by ID.
func (s *SQLiteStore) GetIdea(ctx context.Context, id string) (*types.Idea, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+ideaColumns+" FROM ideas WHERE id = ?", id)
	idea, err := scanIdea(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan idea: %w", err)
	}
	return idea, nil
}

// CreateRouting persists a new routing record at intake.
func (s *SQLiteStore) CreateRouting(ctx context.Context, r *types.IdeaRouting) error {
	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	var overrideDest, overrideSlot sql.NullString
	var overrideScore sql.NullFloat64
	if r.OverrideDestination != nil {
		overrideDest = sql.NullString{String: string(*r.OverrideDestination), Valid: true}
	}
	if r.OverrideScore != nil {
		overrideScore = sql.NullFloat64{Float64: *r.OverrideScore, Valid: true}
	}
	if r.OverrideSlotID != nil {
		overrideSlot = sql.NullString{String: *r.OverrideSlotID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO idea_routing (
			id, idea_id, status, matched_rule_id, destination, youtube_version,
			scores, tier, publication_id, slot_id, calendar_date,
			is_staggered, sibling_publication_id, sibling_date,
			original_date, bump_reason, bumped_at, bumped_by, bump_count,
			override_destination, override_score, override_slot_id, override_reason,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.IdeaID, r.Status, r.MatchedRuleID,
		r.Destination, r.YouTubeVersion, string(scores), r.Tier,
		r.PublicationID, r.SlotID, formatNullDate(r.CalendarDate),
		boolToInt(r.IsStaggered), r.SiblingPublicationID,
		formatNullDate(r.SiblingDate), formatNullDate(r.OriginalDate),
		r.BumpReason, formatNullTime(r.BumpedAt), r.BumpedBy,
		r.BumpCount, overrideDest, overrideScore, overrideSlot,
		r.OverrideReason, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert routing: %w", err)
	}
	return nil
}

const routingColumns = `id, idea_id, status, matched_rule_id, destination, youtube_version,
	scores, tier, publication_id, slot_id, calendar_date,
	is_staggered, sibling_publication_id, sibling_date,
	original_date, bump_reason, bumped_at, bumped_by, bump_count,
	override_destination, override_score, override_slot_id, override_reason,
	created_at, updated_at`

func scanRouting(scanner interface{ Scan(...any) error }) (*types.IdeaRouting, error) {
	var r types.IdeaRouting
	var scoresJSON, createdAt, updatedAt string
	var staggered int
	var calendarDate, siblingDate, originalDate, bumpedAt sql.NullString
	var overrideDest, overrideSlot sql.NullString
	var overrideScore sql.NullFloat64

	err := scanner.Scan(
		&r.ID, &r.IdeaID, &r.Status, &r.MatchedRuleID, &r.Destination, &r.YouTubeVersion,
		&scoresJSON, &r.Tier, &r.PublicationID, &r.SlotID, &calendarDate,
		&staggered, &r.SiblingPublicationID, &siblingDate,
		&originalDate, &r.BumpReason, &bumpedAt, &r.BumpedBy, &r.BumpCount,
		&overrideDest, &overrideScore, &overrideSlot, &r.OverrideReason,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if scoresJSON != "" && scoresJSON != "{}" {
		if err := json.Unmarshal([]byte(scoresJSON), &r.Scores); err != nil {
			return nil, fmt.Errorf("parse scores JSON: %w", err)
		}
	}
	r.IsStaggered = staggered != 0
	if r.CalendarDate, err = parseNullDate(calendarDate); err != nil {
		return nil, fmt.Errorf("parse calendar date: %w", err)
	}
	if r.SiblingDate, err = parseNullDate(siblingDate); err != nil {
		return nil, fmt.Errorf("parse sibling date: %w", err)
	}
	if r.OriginalDate, err = parseNullDate(originalDate); err != nil {
		return nil, fmt.Errorf("parse original date: %w", err)
	}
	r.BumpedAt = parseNullTime(bumpedAt)
	if overrideDest.Valid {
		d := types.Destination(overrideDest.String)
		r.OverrideDestination = &d
	}
	if overrideScore.Valid {
		v := overrideScore.Float64
		r.OverrideScore = &v
	}
	if overrideSlot.Valid {
		v := overrideSlot.String
		r.OverrideSlotID = &v
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// GetRouting retrieves a routing record by ID.
func (s *SQLiteStore) GetRouting(ctx context.Context, id string) (*types.IdeaRouting, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+routingColumns+" FROM idea_routing WHERE id = ?", id)
	r, err := scanRouting(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan routing: %w", err)
	}
	return r, nil
}

// GetRoutingByIdea retrieves the routing record owned by an idea.
func (s *SQLiteStore) GetRoutingByIdea(ctx context.Context, ideaID string) (*types.IdeaRouting, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+routingColumns+" FROM idea_routing WHERE idea_id = ?", ideaID)
	r, err := scanRouting(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan routing: %w", err)
	}
	return r, nil
}

// ListRoutings returns routing records, optionally filtered by status.
func (s *SQLiteStore) ListRoutings(ctx context.Context, status types.RoutingStatus) ([]types.IdeaRouting, error) {
	query := "SELECT " + routingColumns + " FROM idea_routing ORDER BY created_at DESC"
	args := []any{}
	if status != "" {
		query = "SELECT " + routingColumns + " FROM idea_routing WHERE status = ? ORDER BY created_at DESC"
		args = append(args, status)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query routings: %w", err)
	}
	defer rows.Close()

	var out []types.IdeaRouting
	for rows.Next() {
		r, err := scanRouting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routing: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// TransitionStatus persists the routing record's current state and appends
// the status log row in one transaction. The orchestrator is the only
// caller; it has already validated the transition.
func (s *SQLiteStore) TransitionStatus(ctx context.Context, r *types.IdeaRouting, from types.RoutingStatus, reason string) error {
	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE idea_routing SET
			status = ?, matched_rule_id = ?, destination = ?, youtube_version = ?,
			scores = ?, tier = ?, publication_id = ?, slot_id = ?, calendar_date = ?,
			is_staggered = ?, sibling_publication_id = ?, sibling_date = ?,
			original_date = ?, bump_reason = ?, bumped_at = ?, bumped_by = ?, bump_count = ?,
			updated_at = ?
		WHERE id = ?
	`,
		r.Status, r.MatchedRuleID, r.Destination, r.YouTubeVersion,
		string(scores), r.Tier, r.PublicationID, r.SlotID, formatNullDate(r.CalendarDate),
		boolToInt(r.IsStaggered), r.SiblingPublicationID, formatNullDate(r.SiblingDate),
		formatNullDate(r.OriginalDate), r.BumpReason, formatNullTime(r.BumpedAt),
		r.BumpedBy, r.BumpCount, formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update routing: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO routing_status_log (id, routing_id, from_status, to_status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ulid.Make().String(), r.ID, from, r.Status, reason, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert status log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListStatusLog returns the append-only transition history for a routing
// record, oldest first.
func (s *SQLiteStore) ListStatusLog(ctx context.Context, routingID string) ([]types.RoutingStatusLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, routing_id, from_status, to_status, reason, created_at
		FROM routing_status_log
		WHERE routing_id = ?
		ORDER BY created_at ASC, id ASC
	`, routingID)
	if err != nil {
		return nil, fmt.Errorf("query status log: %w", err)
	}
	defer rows.Close()

	var out []types.RoutingStatusLog
	for rows.Next() {
		var l types.RoutingStatusLog
		var createdAt string
		if err := rows.Scan(&l.ID, &l.RoutingID, &l.FromStatus, &l.ToStatus, &l.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		l.CreatedAt = parseTime(createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ClaimSlot atomically claims a publication+date position via the unique
// constraint on schedule_entries. Returns false without error when the
// position is already held.
func (s *SQLiteStore) ClaimSlot(ctx context.Context, entry *types.ScheduleEntry) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_entries (id, publication_id, routing_id, slot_id, calendar_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.PublicationID, entry.RoutingID, entry.SlotID,
		entry.CalendarDate.String(), entry.Status, formatTime(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert schedule entry: %w", err)
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ReleaseSlot frees a routing record's claimed calendar position so the
// date can be claimed by another idea. Published entries are never
// released.
func (s *SQLiteStore) ReleaseSlot(ctx context.Context, routingID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM schedule_entries
		WHERE routing_id = ? AND status != 'published'
	`, routingID)
	if err != nil {
		return fmt.Errorf("delete schedule entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSchedule returns a publication's occupied positions in [from, to].
func (s *SQLiteStore) ListSchedule(ctx context.Context, publicationID string, from, to types.Date) ([]types.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, publication_id, routing_id, slot_id, calendar_date, status
		FROM schedule_entries
		WHERE publication_id = ? AND calendar_date >= ? AND calendar_date <= ?
		ORDER BY calendar_date ASC
	`, publicationID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()
	return scanScheduleRows(rows)
}

// ListScheduleAll returns every publication's occupied positions in
// [from, to]. Used by the alert scan.
func (s *SQLiteStore) ListScheduleAll(ctx context.Context, from, to types.Date) ([]types.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, publication_id, routing_id, slot_id, calendar_date, status
		FROM schedule_entries
		WHERE calendar_date >= ? AND calendar_date <= ?
		ORDER BY publication_id ASC, calendar_date ASC
	`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()
	return scanScheduleRows(rows)
}

func scanScheduleRows(rows *sql.Rows) ([]types.ScheduleEntry, error) {
	var out []types.ScheduleEntry
	for rows.Next() {
		var e types.ScheduleEntry
		var date string
		if err := rows.Scan(&e.ID, &e.PublicationID, &e.RoutingID, &e.SlotID, &date, &e.Status); err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		d, err := types.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("parse calendar date: %w", err)
		}
		e.CalendarDate = d
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertEvergreenEntry parks a scored routing record in the queue.
func (s *SQLiteStore) InsertEvergreenEntry(ctx context.Context, entry *types.EvergreenQueueEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evergreen_queue (
			id, publication_id, routing_id, idea_id, score, tier, added_at,
			is_stale, stale_reason, stale_marked_at, pulled_at, pulled_for_date, pulled_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.PublicationID, entry.RoutingID, entry.IdeaID,
		entry.Score, entry.Tier, formatTime(entry.AddedAt),
		boolToInt(entry.IsStale), entry.StaleReason, formatNullTime(entry.StaleMarkedAt),
		formatNullTime(entry.PulledAt), formatNullDate(entry.PulledForDate), entry.PulledReason,
	)
	if err != nil {
		return fmt.Errorf("insert evergreen entry: %w", err)
	}
	return nil
}

// ListEvergreenEntries returns a publication's queue, oldest first.
func (s *SQLiteStore) ListEvergreenEntries(ctx context.Context, publicationID string) ([]types.EvergreenQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, publication_id, routing_id, idea_id, score, tier, added_at,
		       is_stale, stale_reason, stale_marked_at, pulled_at, pulled_for_date, pulled_reason
		FROM evergreen_queue
		WHERE publication_id = ?
		ORDER BY added_at ASC
	`, publicationID)
	if err != nil {
		return nil, fmt.Errorf("query evergreen queue: %w", err)
	}
	defer rows.Close()

	var out []types.EvergreenQueueEntry
	for rows.Next() {
		e, err := scanEvergreenEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEvergreenEntry(scanner interface{ Scan(...any) error }) (*types.EvergreenQueueEntry, error) {
	var e types.EvergreenQueueEntry
	var addedAt string
	var stale int
	var staleMarkedAt, pulledAt, pulledForDate sql.NullString

	err := scanner.Scan(
		&e.ID, &e.PublicationID, &e.RoutingID, &e.IdeaID, &e.Score, &e.Tier, &addedAt,
		&stale, &e.StaleReason, &staleMarkedAt, &pulledAt, &pulledForDate, &e.PulledReason,
	)
	if err != nil {
		return nil, fmt.Errorf("scan evergreen entry: %w", err)
	}

	e.AddedAt = parseTime(addedAt)
	e.IsStale = stale != 0
	e.StaleMarkedAt = parseNullTime(staleMarkedAt)
	e.PulledAt = parseNullTime(pulledAt)
	if e.PulledForDate, err = parseNullDate(pulledForDate); err != nil {
		return nil, fmt.Errorf("parse pulled date: %w", err)
	}
	return &e, nil
}

// UpdateEvergreenEntry persists pull and staleness bookkeeping.
func (s *SQLiteStore) UpdateEvergreenEntry(ctx context.Context, entry *types.EvergreenQueueEntry) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE evergreen_queue SET
			score = ?, tier = ?, is_stale = ?, stale_reason = ?, stale_marked_at = ?,
			pulled_at = ?, pulled_for_date = ?, pulled_reason = ?
		WHERE id = ?
	`,
		entry.Score, entry.Tier, boolToInt(entry.IsStale), entry.StaleReason,
		formatNullTime(entry.StaleMarkedAt), formatNullTime(entry.PulledAt),
		formatNullDate(entry.PulledForDate), entry.PulledReason, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("update evergreen entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingIdeas returns routing records still ahead of scoring, joined
// with the idea fields the alert scan needs.
func (s *SQLiteStore) ListPendingIdeas(ctx context.Context) ([]routing.PendingIdea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, i.title, r.status, i.time_sensitivity, r.created_at
		FROM idea_routing r
		JOIN ideas i ON i.id = r.idea_id
		WHERE r.status IN ('intake', 'routed')
		ORDER BY r.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending ideas: %w", err)
	}
	defer rows.Close()

	var out []routing.PendingIdea
	for rows.Next() {
		var p routing.PendingIdea
		var createdAt string
		if err := rows.Scan(&p.RoutingID, &p.Title, &p.Status, &p.Sensitivity, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending idea: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// EvergreenQueueDepths returns pullable entry counts per publication.
func (s *SQLiteStore) EvergreenQueueDepths(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT publication_id, COUNT(*)
		FROM evergreen_queue
		WHERE is_stale = 0 AND pulled_at IS NULL
		GROUP BY publication_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query queue depths: %w", err)
	}
	defer rows.Close()

	depths := make(map[string]int)
	for rows.Next() {
		var pubID string
		var count int
		if err := rows.Scan(&pubID, &count); err != nil {
			return nil, fmt.Errorf("scan queue depth: %w", err)
		}
		depths[pubID] = count
	}
	return depths, rows.Err()
}

// ListRecentTopics returns titles of ideas routed since the given time,
// for the duplicate-topic scan.
func (s *SQLiteStore) ListRecentTopics(ctx context.Context, since time.Time) ([]routing.RecentTopic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, i.title
		FROM idea_routing r
		JOIN ideas i ON i.id = r.idea_id
		WHERE r.status NOT IN ('killed') AND r.created_at >= ?
		ORDER BY r.created_at ASC
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query recent topics: %w", err)
	}
	defer rows.Close()

	var out []routing.RecentTopic
	for rows.Next() {
		var t routing.RecentTopic
		if err := rows.Scan(&t.RoutingID, &t.Title); err != nil {
			return nil, fmt.Errorf("scan recent topic: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
