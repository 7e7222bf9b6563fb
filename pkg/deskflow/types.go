package deskflow

import (
	"fmt"
	"time"
)

// Idea is a content concept submitted for routing.
type Idea struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Audience        string `json:"audience"`
	Action          string `json:"action,omitempty"`
	TimeSensitivity string `json:"time_sensitivity"`
	ResourceType    string `json:"resource_type,omitempty"`
	Angle           string `json:"angle,omitempty"`
	EstimatedLength int    `json:"estimated_length,omitempty"`

	PreassignedFormat string `json:"preassigned_format,omitempty"`

	CanFrameAsCompleteGuide bool `json:"can_frame_as_complete_guide"`
	IsFoundational          bool `json:"is_foundational"`
	HasContrarianAngle      bool `json:"has_contrarian_angle"`
	HasPersonalStory        bool `json:"has_personal_story"`
	HasDataBacking          bool `json:"has_data_backing"`
	IsSeriesCandidate       bool `json:"is_series_candidate"`
	NeedsVisualDemo         bool `json:"needs_visual_demo"`
	IsTimelyReference       bool `json:"is_timely_reference"`

	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Override carries manual routing overrides supplied at intake.
// Reason is required whenever any value is set.
type Override struct {
	Destination *string  `json:"destination,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	SlotID      *string  `json:"slot_id,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// Routing is the engine's routing record for one idea. Calendar dates are
// ISO 8601 date strings (YYYY-MM-DD).
type Routing struct {
	ID             string `json:"id"`
	IdeaID         string `json:"idea_id"`
	Status         string `json:"status"`
	MatchedRuleID  string `json:"matched_rule_id,omitempty"`
	Destination    string `json:"destination,omitempty"`
	YouTubeVersion string `json:"youtube_version,omitempty"`

	Scores map[string]float64 `json:"scores,omitempty"`
	Tier   string             `json:"tier,omitempty"`

	PublicationID string `json:"publication_id,omitempty"`
	SlotID        string `json:"slot_id,omitempty"`
	CalendarDate  string `json:"calendar_date,omitempty"`

	// Bump bookkeeping for displaced items.
	OriginalDate string `json:"original_date,omitempty"`
	BumpReason   string `json:"bump_reason,omitempty"`
	BumpedBy     string `json:"bumped_by,omitempty"`
	BumpCount    int    `json:"bump_count,omitempty"`

	OverrideReason string `json:"override_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleEntry is one occupied publication+date position.
type ScheduleEntry struct {
	ID            string `json:"id"`
	PublicationID string `json:"publication_id"`
	RoutingID     string `json:"routing_id"`
	SlotID        string `json:"slot_id"`
	CalendarDate  string `json:"calendar_date"`
	Status        string `json:"status"`
}

// EvergreenEntry is a scored idea parked in a publication's queue.
type EvergreenEntry struct {
	ID            string    `json:"id"`
	PublicationID string    `json:"publication_id"`
	RoutingID     string    `json:"routing_id"`
	IdeaID        string    `json:"idea_id"`
	Score         float64   `json:"score"`
	Tier          string    `json:"tier"`
	AddedAt       time.Time `json:"added_at"`
	IsStale       bool      `json:"is_stale"`
	StaleReason   string    `json:"stale_reason,omitempty"`
	PulledForDate string    `json:"pulled_for_date,omitempty"`
	PulledReason  string    `json:"pulled_reason,omitempty"`
}

// Placement reports where the pipeline landed an idea.
type Placement struct {
	Kind      string          `json:"kind"`
	Schedule  *ScheduleEntry  `json:"schedule,omitempty"`
	Evergreen *EvergreenEntry `json:"evergreen,omitempty"`
}

// ScoreSummary is the per-publication score summary returned with intake
// results. Detailed contribution breakdowns are available server-side.
type ScoreSummary struct {
	PublicationID string  `json:"publication_id"`
	BaseScore     float64 `json:"base_score"`
	Total         float64 `json:"total"`
	Tier          string  `json:"tier"`
}

// IntakeResult is the outcome of submitting an idea.
type IntakeResult struct {
	Idea       Idea                     `json:"idea"`
	Routing    Routing                  `json:"routing"`
	Breakdowns map[string]*ScoreSummary `json:"breakdowns,omitempty"`
	Placement  Placement                `json:"placement"`
}

// StatusLogEntry is one recorded status transition.
type StatusLogEntry struct {
	ID         string    `json:"id"`
	RoutingID  string    `json:"routing_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IdeaDetail is the full read model for one idea.
type IdeaDetail struct {
	Idea      Idea             `json:"idea"`
	Routing   Routing          `json:"routing"`
	StatusLog []StatusLogEntry `json:"status_log"`
}

// Alert is a non-blocking operational signal.
type Alert struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	PublicationID string    `json:"publication_id,omitempty"`
	RoutingID     string    `json:"routing_id,omitempty"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stats are the dashboard projections.
type Stats struct {
	IdeasByStatus        map[string]int64 `json:"ideas_by_status"`
	IdeasByTier          map[string]int64 `json:"ideas_by_tier"`
	EvergreenQueueCounts map[string]int64 `json:"evergreen_queue_counts"`
	ScheduledThisWeek    int64            `json:"scheduled_this_week"`
	StatsAsOf            time.Time        `json:"stats_as_of"`
}

// Health is the health check payload.
type Health struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	IdeaCount     int64     `json:"idea_count"`
	SchemaVersion int       `json:"schema_version"`
	StatsAsOf     time.Time `json:"stats_as_of"`
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a server error response in RFC 7807 problem form.
type APIError struct {
	Type   string       `json:"type"`
	Title  string       `json:"title"`
	Status int          `json:"status"`
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("deskflow: %s (status %d): %s", e.Title, e.Status, e.Detail)
	}
	return fmt.Sprintf("deskflow: %s (status %d)", e.Title, e.Status)
}

type intakeRequest struct {
	Idea     Idea      `json:"idea"`
	Override *Override `json:"override,omitempty"`
}

type killRequest struct {
	Reason string `json:"reason"`
}

type bumpRequest struct {
	Reason   string `json:"reason"`
	BumpedBy string `json:"bumped_by,omitempty"`
}

type evergreenPullRequest struct {
	PublicationID string `json:"publication_id"`
	Date          string `json:"date"`
	Reason        string `json:"reason,omitempty"`
}
