package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperengineering/deskflow/internal/types"
)

// Rule, publication, rubric, threshold, and slot rows carry JSON columns
// for their structured fields (conditions, criteria, actions, skip rules).

// CreateRule inserts a routing rule.
func (s *SQLiteStore) CreateRule(ctx context.Context, rule *types.RoutingRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO routing_rules (id, name, priority, is_active, conditions, routes_to, youtube_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.Name, rule.Priority, boolToInt(rule.IsActive), string(conditions),
		rule.RoutesTo, rule.YouTubeVersion, now, now)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// ListRules returns all routing rules ordered by priority.
func (s *SQLiteStore) ListRules(ctx context.Context) ([]types.RoutingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, priority, is_active, conditions, routes_to, youtube_version, created_at, updated_at
		FROM routing_rules
		ORDER BY priority ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []types.RoutingRule
	for rows.Next() {
		var r types.RoutingRule
		var active int
		var conditions, createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.Priority, &active, &conditions, &r.RoutesTo, &r.YouTubeVersion, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.IsActive = active != 0
		if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
			return nil, fmt.Errorf("parse conditions: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRule replaces a routing rule's mutable fields.
func (s *SQLiteStore) UpdateRule(ctx context.Context, rule *types.RoutingRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE routing_rules
		SET name = ?, priority = ?, is_active = ?, conditions = ?, routes_to = ?, youtube_version = ?, updated_at = ?
		WHERE id = ?
	`, rule.Name, rule.Priority, boolToInt(rule.IsActive), string(conditions),
		rule.RoutesTo, rule.YouTubeVersion, formatTime(time.Now()), rule.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireAffected(result)
}

// DeleteRule removes a routing rule.
func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM routing_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireAffected(result)
}

// CreatePublication inserts a publication.
func (s *SQLiteStore) CreatePublication(ctx context.Context, pub *types.Publication) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publications (id, name, slug, type, weekly_target, unified_with, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pub.ID, pub.Name, pub.Slug, pub.Type, pub.WeeklyTarget, pub.UnifiedWith,
		boolToInt(pub.IsActive), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateSlug, pub.Slug)
		}
		return fmt.Errorf("insert publication: %w", err)
	}
	return nil
}

const publicationColumns = "id, name, slug, type, weekly_target, unified_with, is_active, created_at, updated_at"

func scanPublication(scanner interface{ Scan(...any) error }) (*types.Publication, error) {
	var p types.Publication
	var active int
	var createdAt, updatedAt string
	err := scanner.Scan(&p.ID, &p.Name, &p.Slug, &p.Type, &p.WeeklyTarget, &p.UnifiedWith, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.IsActive = active != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// GetPublication retrieves a publication by ID.
func (s *SQLiteStore) GetPublication(ctx context.Context, id string) (*types.Publication, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+publicationColumns+" FROM publications WHERE id = ?", id)
	p, err := scanPublication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan publication: %w", err)
	}
	return p, nil
}

// ListPublications returns all publications.
func (s *SQLiteStore) ListPublications(ctx context.Context) ([]types.Publication, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+publicationColumns+" FROM publications ORDER BY slug ASC")
	if err != nil {
		return nil, fmt.Errorf("query publications: %w", err)
	}
	defer rows.Close()

	var out []types.Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdatePublication replaces a publication's mutable fields.
func (s *SQLiteStore) UpdatePublication(ctx context.Context, pub *types.Publication) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE publications
		SET name = ?, slug = ?, type = ?, weekly_target = ?, unified_with = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, pub.Name, pub.Slug, pub.Type, pub.WeeklyTarget, pub.UnifiedWith,
		boolToInt(pub.IsActive), formatTime(time.Now()), pub.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateSlug, pub.Slug)
		}
		return fmt.Errorf("update publication: %w", err)
	}
	return requireAffected(result)
}

// CreateRubric inserts a scoring rubric.
func (s *SQLiteStore) CreateRubric(ctx context.Context, rubric *types.ScoringRubric) error {
	criteria, err := json.Marshal(rubric.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	modifiers, err := json.Marshal(rubric.Modifiers)
	if err != nil {
		return fmt.Errorf("marshal modifiers: %w", err)
	}
	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scoring_rubrics (
			id, publication_id, name, weight, is_modifier, baseline_score,
			source_field, match_strategy, criteria, modifiers, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rubric.ID, rubric.PublicationID, rubric.Name, rubric.Weight,
		boolToInt(rubric.IsModifier), rubric.BaselineScore, rubric.SourceField,
		rubric.MatchStrategy, string(criteria), string(modifiers),
		boolToInt(rubric.IsActive), now, now)
	if err != nil {
		return fmt.Errorf("insert rubric: %w", err)
	}
	return nil
}

// ListRubrics returns all scoring rubrics.
func (s *SQLiteStore) ListRubrics(ctx context.Context) ([]types.ScoringRubric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, publication_id, name, weight, is_modifier, baseline_score,
		       source_field, match_strategy, criteria, modifiers, is_active, created_at, updated_at
		FROM scoring_rubrics
		ORDER BY publication_id ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rubrics: %w", err)
	}
	defer rows.Close()

	var out []types.ScoringRubric
	for rows.Next() {
		var r types.ScoringRubric
		var modifier, active int
		var criteria, modifiers, createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.PublicationID, &r.Name, &r.Weight, &modifier,
			&r.BaselineScore, &r.SourceField, &r.MatchStrategy, &criteria, &modifiers,
			&active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan rubric: %w", err)
		}
		r.IsModifier = modifier != 0
		r.IsActive = active != 0
		if err := json.Unmarshal([]byte(criteria), &r.Criteria); err != nil {
			return nil, fmt.Errorf("parse criteria: %w", err)
		}
		if err := json.Unmarshal([]byte(modifiers), &r.Modifiers); err != nil {
			return nil, fmt.Errorf("parse modifiers: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRubric replaces a rubric's mutable fields.
func (s *SQLiteStore) UpdateRubric(ctx context.Context, rubric *types.ScoringRubric) error {
	criteria, err := json.Marshal(rubric.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	modifiers, err := json.Marshal(rubric.Modifiers)
	if err != nil {
		return fmt.Errorf("marshal modifiers: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE scoring_rubrics
		SET publication_id = ?, name = ?, weight = ?, is_modifier = ?, baseline_score = ?,
		    source_field = ?, match_strategy = ?, criteria = ?, modifiers = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, rubric.PublicationID, rubric.Name, rubric.Weight, boolToInt(rubric.IsModifier),
		rubric.BaselineScore, rubric.SourceField, rubric.MatchStrategy,
		string(criteria), string(modifiers), boolToInt(rubric.IsActive),
		formatTime(time.Now()), rubric.ID)
	if err != nil {
		return fmt.Errorf("update rubric: %w", err)
	}
	return requireAffected(result)
}

// DeleteRubric removes a rubric.
func (s *SQLiteStore) DeleteRubric(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM scoring_rubrics WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rubric: %w", err)
	}
	return requireAffected(result)
}

// CreateThreshold inserts a tier threshold band.
func (s *SQLiteStore) CreateThreshold(ctx context.Context, threshold *types.TierThreshold) error {
	actions, err := json.Marshal(threshold.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	days, err := json.Marshal(threshold.PreferredDays)
	if err != nil {
		return fmt.Errorf("marshal preferred days: %w", err)
	}
	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tier_thresholds (id, publication_id, tier, min_score, max_score, actions, preferred_days, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, threshold.ID, threshold.PublicationID, threshold.Tier, threshold.MinScore,
		threshold.MaxScore, string(actions), string(days), boolToInt(threshold.IsActive), now, now)
	if err != nil {
		return fmt.Errorf("insert threshold: %w", err)
	}
	return nil
}

// ListThresholds returns all tier threshold bands.
func (s *SQLiteStore) ListThresholds(ctx context.Context) ([]types.TierThreshold, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, publication_id, tier, min_score, max_score, actions, preferred_days, is_active, created_at, updated_at
		FROM tier_thresholds
		ORDER BY publication_id ASC, min_score ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query thresholds: %w", err)
	}
	defer rows.Close()

	var out []types.TierThreshold
	for rows.Next() {
		var t types.TierThreshold
		var active int
		var actions, days, createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.PublicationID, &t.Tier, &t.MinScore, &t.MaxScore,
			&actions, &days, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		t.IsActive = active != 0
		if err := json.Unmarshal([]byte(actions), &t.Actions); err != nil {
			return nil, fmt.Errorf("parse actions: %w", err)
		}
		if err := json.Unmarshal([]byte(days), &t.PreferredDays); err != nil {
			return nil, fmt.Errorf("parse preferred days: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateThreshold replaces a threshold's mutable fields.
func (s *SQLiteStore) UpdateThreshold(ctx context.Context, threshold *types.TierThreshold) error {
	actions, err := json.Marshal(threshold.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	days, err := json.Marshal(threshold.PreferredDays)
	if err != nil {
		return fmt.Errorf("marshal preferred days: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tier_thresholds
		SET publication_id = ?, tier = ?, min_score = ?, max_score = ?, actions = ?, preferred_days = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, threshold.PublicationID, threshold.Tier, threshold.MinScore, threshold.MaxScore,
		string(actions), string(days), boolToInt(threshold.IsActive), formatTime(time.Now()), threshold.ID)
	if err != nil {
		return fmt.Errorf("update threshold: %w", err)
	}
	return requireAffected(result)
}

// DeleteThreshold removes a threshold band.
func (s *SQLiteStore) DeleteThreshold(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tier_thresholds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete threshold: %w", err)
	}
	return requireAffected(result)
}

// CreateSlot inserts a calendar slot.
func (s *SQLiteStore) CreateSlot(ctx context.Context, slot *types.CalendarSlot) error {
	skipRules, err := json.Marshal(slot.SkipRules)
	if err != nil {
		return fmt.Errorf("marshal skip rules: %w", err)
	}
	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calendar_slots (id, publication_id, day_of_week, is_fixed, fixed_format, preferred_tier, tier_priority, skip_rules, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, slot.ID, slot.PublicationID, slot.DayOfWeek, boolToInt(slot.IsFixed),
		slot.FixedFormat, slot.PreferredTier, slot.TierPriority, string(skipRules),
		boolToInt(slot.IsActive), now, now)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// ListSlots returns a publication's calendar slots.
func (s *SQLiteStore) ListSlots(ctx context.Context, publicationID string) ([]types.CalendarSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, publication_id, day_of_week, is_fixed, fixed_format, preferred_tier, tier_priority, skip_rules, is_active, created_at, updated_at
		FROM calendar_slots
		WHERE publication_id = ?
		ORDER BY tier_priority ASC, id ASC
	`, publicationID)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var out []types.CalendarSlot
	for rows.Next() {
		var c types.CalendarSlot
		var fixed, active int
		var skipRules, createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.PublicationID, &c.DayOfWeek, &fixed, &c.FixedFormat,
			&c.PreferredTier, &c.TierPriority, &skipRules, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		c.IsFixed = fixed != 0
		c.IsActive = active != 0
		if err := json.Unmarshal([]byte(skipRules), &c.SkipRules); err != nil {
			return nil, fmt.Errorf("parse skip rules: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateSlot replaces a slot's mutable fields.
func (s *SQLiteStore) UpdateSlot(ctx context.Context, slot *types.CalendarSlot) error {
	skipRules, err := json.Marshal(slot.SkipRules)
	if err != nil {
		return fmt.Errorf("marshal skip rules: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE calendar_slots
		SET publication_id = ?, day_of_week = ?, is_fixed = ?, fixed_format = ?, preferred_tier = ?, tier_priority = ?, skip_rules = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, slot.PublicationID, slot.DayOfWeek, boolToInt(slot.IsFixed), slot.FixedFormat,
		slot.PreferredTier, slot.TierPriority, string(skipRules),
		boolToInt(slot.IsActive), formatTime(time.Now()), slot.ID)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return requireAffected(result)
}

// DeleteSlot removes a calendar slot.
func (s *SQLiteStore) DeleteSlot(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM calendar_slots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
