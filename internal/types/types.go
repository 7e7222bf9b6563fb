package types

import (
	"encoding/json"
	"time"
)

// RoutingStatus represents the position of an idea in the routing pipeline.
type RoutingStatus string

const (
	StatusIntake    RoutingStatus = "intake"
	StatusRouted    RoutingStatus = "routed"
	StatusScored    RoutingStatus = "scored"
	StatusSlotted   RoutingStatus = "slotted"
	StatusScheduled RoutingStatus = "scheduled"
	StatusPublished RoutingStatus = "published"
	StatusKilled    RoutingStatus = "killed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RoutingStatus) Terminal() bool {
	return s == StatusPublished || s == StatusKilled
}

// validTransitions is the one-directional status machine. Killed is reachable
// from any non-terminal state and is handled in ValidTransition directly.
var validTransitions = map[RoutingStatus]RoutingStatus{
	StatusIntake:    StatusRouted,
	StatusRouted:    StatusScored,
	StatusScored:    StatusSlotted,
	StatusSlotted:   StatusScheduled,
	StatusScheduled: StatusPublished,
}

// Known reports whether s is one of the defined pipeline statuses.
func (s RoutingStatus) Known() bool {
	if s.Terminal() {
		return true
	}
	_, ok := validTransitions[s]
	return ok
}

// ValidTransition reports whether from -> to is a legal status transition.
func ValidTransition(from, to RoutingStatus) bool {
	if to == StatusKilled {
		return !from.Terminal()
	}
	return validTransitions[from] == to
}

// Tier is a quality band derived from total score.
type Tier string

const (
	TierPremiumA Tier = "premium_a"
	TierA        Tier = "a"
	TierB        Tier = "b"
	TierC        Tier = "c"
	TierKill     Tier = "kill"
)

// tierRank encodes the total order over tier slugs. Higher rank is better.
// The ordering is explicit rather than derived from string comparison.
var tierRank = map[Tier]int{
	TierPremiumA: 4,
	TierA:        3,
	TierB:        2,
	TierC:        1,
	TierKill:     0,
}

// Rank returns the position of t in the tier order (higher is better).
// Unknown tiers rank below kill.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// Known reports whether t is one of the five defined tier slugs.
func (t Tier) Known() bool {
	_, ok := tierRank[t]
	return ok
}

// Audience is the target reader segment of an idea.
type Audience string

const (
	AudienceBeginner     Audience = "beginner"
	AudienceIntermediate Audience = "intermediate"
	AudienceExecutive    Audience = "executive"
)

// TimeSensitivity classifies how perishable an idea is.
type TimeSensitivity string

const (
	SensitivityEvergreen TimeSensitivity = "evergreen"
	SensitivityNewsHook  TimeSensitivity = "news_hook"
	SensitivityLaunchTie TimeSensitivity = "launch_tie"
	SensitivitySeasonal  TimeSensitivity = "seasonal"
)

// Perishable reports whether the sensitivity implies a freshness window.
func (s TimeSensitivity) Perishable() bool {
	return s == SensitivityNewsHook || s == SensitivityLaunchTie
}

// Destination is the routing target produced by the rule matcher.
type Destination string

const (
	DestinationCore     Destination = "core"
	DestinationBeginner Destination = "beginner"
	DestinationBoth     Destination = "both"
)

// YouTubeVersion flags whether a video version accompanies the idea.
type YouTubeVersion string

const (
	YouTubeYes YouTubeVersion = "yes"
	YouTubeNo  YouTubeVersion = "no"
	YouTubeTBD YouTubeVersion = "tbd"
)

// PublicationType distinguishes destination channels.
type PublicationType string

const (
	PublicationNewsletter PublicationType = "newsletter"
	PublicationVideo      PublicationType = "video"
)

// Idea is a captured content concept with its intake attributes.
type Idea struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Audience        Audience        `json:"audience"`
	Action          string          `json:"action,omitempty"`
	TimeSensitivity TimeSensitivity `json:"time_sensitivity"`
	ResourceType    string          `json:"resource_type,omitempty"`
	Angle           string          `json:"angle,omitempty"`
	EstimatedLength int             `json:"estimated_length,omitempty"`

	// PreassignedFormat matches an idea to fixed-format calendar slots.
	PreassignedFormat string `json:"preassigned_format,omitempty"`

	// Helper flags tested by routing rule conditions.
	CanFrameAsCompleteGuide bool `json:"can_frame_as_complete_guide"`
	IsFoundational          bool `json:"is_foundational"`
	HasContrarianAngle      bool `json:"has_contrarian_angle"`
	HasPersonalStory        bool `json:"has_personal_story"`
	HasDataBacking          bool `json:"has_data_backing"`
	IsSeriesCandidate       bool `json:"is_series_candidate"`
	NeedsVisualDemo         bool `json:"needs_visual_demo"`
	IsTimelyReference       bool `json:"is_timely_reference"`

	// RequiresConfirmation pauses the pipeline at slotted until a human
	// confirms the assignment.
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attributes returns the flat attribute map conditions evaluate against.
// Routing-record attributes are merged under the "routing" key by the
// evaluator when a routing record is present.
func (i Idea) Attributes() map[string]any {
	return map[string]any{
		"title":                       i.Title,
		"audience":                    string(i.Audience),
		"action":                      i.Action,
		"time_sensitivity":            string(i.TimeSensitivity),
		"resource_type":               i.ResourceType,
		"angle":                       i.Angle,
		"estimated_length":            i.EstimatedLength,
		"preassigned_format":          i.PreassignedFormat,
		"can_frame_as_complete_guide": i.CanFrameAsCompleteGuide,
		"is_foundational":             i.IsFoundational,
		"has_contrarian_angle":        i.HasContrarianAngle,
		"has_personal_story":          i.HasPersonalStory,
		"has_data_backing":            i.HasDataBacking,
		"is_series_candidate":         i.IsSeriesCandidate,
		"needs_visual_demo":           i.NeedsVisualDemo,
		"is_timely_reference":         i.IsTimelyReference,
	}
}

// FlagCount returns how many of the helper flags are set.
func (i Idea) FlagCount() int {
	count := 0
	for _, f := range []bool{
		i.CanFrameAsCompleteGuide,
		i.IsFoundational,
		i.HasContrarianAngle,
		i.HasPersonalStory,
		i.HasDataBacking,
		i.IsSeriesCandidate,
		i.NeedsVisualDemo,
		i.IsTimelyReference,
	} {
		if f {
			count++
		}
	}
	return count
}

// IdeaRouting is the routing record owned by the engine, one per idea.
// Created at intake, mutated as the idea advances, never deleted.
type IdeaRouting struct {
	ID             string         `json:"id"`
	IdeaID         string         `json:"idea_id"`
	Status         RoutingStatus  `json:"status"`
	MatchedRuleID  string         `json:"matched_rule_id,omitempty"`
	Destination    Destination    `json:"destination,omitempty"`
	YouTubeVersion YouTubeVersion `json:"youtube_version,omitempty"`

	// Scores maps publication ID to the publication's normalized total.
	Scores map[string]float64 `json:"scores,omitempty"`
	Tier   Tier               `json:"tier,omitempty"`

	// Placement fields, populated once a slot is assigned.
	PublicationID string `json:"publication_id,omitempty"`
	SlotID        string `json:"slot_id,omitempty"`
	CalendarDate  *Date  `json:"calendar_date,omitempty"`

	// Stagger bookkeeping for unified publication pairs.
	IsStaggered          bool   `json:"is_staggered,omitempty"`
	SiblingPublicationID string `json:"sibling_publication_id,omitempty"`
	SiblingDate          *Date  `json:"sibling_date,omitempty"`

	// Bump bookkeeping for displaced scheduled items.
	OriginalDate *Date      `json:"original_date,omitempty"`
	BumpReason   string     `json:"bump_reason,omitempty"`
	BumpedAt     *time.Time `json:"bumped_at,omitempty"`
	BumpedBy     string     `json:"bumped_by,omitempty"`
	BumpCount    int        `json:"bump_count,omitempty"`

	// Manual overrides, applied after computation and before persistence.
	OverrideDestination *Destination `json:"override_destination,omitempty"`
	OverrideScore       *float64     `json:"override_score,omitempty"`
	OverrideSlotID      *string      `json:"override_slot_id,omitempty"`
	OverrideReason      string       `json:"override_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoutingRule is an ordered, named routing rule. Lower priority values are
// evaluated first. Exactly one catch-all (always-true) rule must exist at
// the lowest priority so matching always terminates.
type RoutingRule struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Priority       int            `json:"priority"`
	IsActive       bool           `json:"is_active"`
	Conditions     Condition      `json:"conditions"`
	RoutesTo       Destination    `json:"routes_to"`
	YouTubeVersion YouTubeVersion `json:"youtube_version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Publication is a destination channel.
type Publication struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Slug ties the publication to rule destinations: a rule routing to
	// "core" targets the publication with slug "core".
	Slug string `json:"slug"`

	Type         PublicationType `json:"type"`
	WeeklyTarget int             `json:"weekly_target"`

	// UnifiedWith points at a sibling publication sharing output,
	// e.g. a newsletter paired with its video channel.
	UnifiedWith string `json:"unified_with,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchStrategy selects how a rubric maps an idea attribute to a criterion.
type MatchStrategy string

const (
	// MatchExact compares the attribute's string form to criterion values.
	MatchExact MatchStrategy = "exact"
	// MatchNumericBand places a numeric attribute into [min,max) bands.
	MatchNumericBand MatchStrategy = "numeric_band"
	// MatchFlagCount bands on the number of helper flags set on the idea.
	MatchFlagCount MatchStrategy = "flag_count"
)

// ScoringCriterion is one discrete score band within a rubric.
type ScoringCriterion struct {
	Value       string  `json:"value,omitempty"`
	MinValue    float64 `json:"min_value,omitempty"`
	MaxValue    float64 `json:"max_value,omitempty"`
	Score       float64 `json:"score"`
	Description string  `json:"description,omitempty"`
}

// ScoringModifier is a condition string with an additive adjustment.
// The condition is either a bare flag name ("has_contrarian_angle") or a
// "field=value" expression, evaluated against the idea's attributes.
type ScoringModifier struct {
	Condition string  `json:"condition"`
	Modifier  float64 `json:"modifier"`
}

// ScoringRubric is a weighted scoring dimension for one publication.
// A modifier rubric carries a baseline score plus modifiers instead of
// criterion bands.
type ScoringRubric struct {
	ID            string        `json:"id"`
	PublicationID string        `json:"publication_id"`
	Name          string        `json:"name"`
	Weight        float64       `json:"weight"`
	IsModifier    bool          `json:"is_modifier"`
	BaselineScore float64       `json:"baseline_score,omitempty"`
	SourceField   string        `json:"source_field,omitempty"`
	MatchStrategy MatchStrategy `json:"match_strategy,omitempty"`

	Criteria  []ScoringCriterion `json:"criteria,omitempty"`
	Modifiers []ScoringModifier  `json:"modifiers,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TierActions are the per-tier scheduling behaviors.
type TierActions struct {
	StaggerYouTubeDay  int  `json:"stagger_youtube_day,omitempty"`
	StaggerSubstackDay int  `json:"stagger_substack_day,omitempty"`
	DoNotProduce       bool `json:"do_not_produce,omitempty"`
	RequiresRethink    bool `json:"requires_rethink,omitempty"`
}

// TierThreshold maps a [min,max) score band to a tier. The topmost band is
// upper-inclusive so a score of exactly 100 resolves. An empty
// PublicationID scopes the threshold globally.
type TierThreshold struct {
	ID            string      `json:"id"`
	PublicationID string      `json:"publication_id,omitempty"`
	Tier          Tier        `json:"tier"`
	MinScore      float64     `json:"min_score"`
	MaxScore      float64     `json:"max_score"`
	Actions       TierActions `json:"actions"`
	PreferredDays []int       `json:"preferred_days,omitempty"`
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// SkipRule excludes dates from a slot, year-independently. Either Date is
// set (a single MM-DD) or Start and End are set (an MM-DD range, which may
// span year end, e.g. 12-20 through 01-05).
type SkipRule struct {
	Date  string `json:"date,omitempty"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// CalendarSlot is a recurring weekly slot for a publication.
type CalendarSlot struct {
	ID            string `json:"id"`
	PublicationID string `json:"publication_id"`
	DayOfWeek     int    `json:"day_of_week"` // 0 = Sunday

	// IsFixed slots carry a pre-assigned format and bypass tier ranking
	// for ideas that declare the same format.
	IsFixed     bool   `json:"is_fixed,omitempty"`
	FixedFormat string `json:"fixed_format,omitempty"`

	// PreferredTier reserves the slot; empty means any tier may fill it.
	// Lower TierPriority slots are filled first.
	PreferredTier Tier `json:"preferred_tier,omitempty"`
	TierPriority  int  `json:"tier_priority"`

	SkipRules []SkipRule `json:"skip_rules,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EvergreenQueueEntry is a scored idea parked for a publication while no
// slot is available.
type EvergreenQueueEntry struct {
	ID            string    `json:"id"`
	PublicationID string    `json:"publication_id"`
	RoutingID     string    `json:"routing_id"`
	IdeaID        string    `json:"idea_id"`
	Score         float64   `json:"score"`
	Tier          Tier      `json:"tier"`
	AddedAt       time.Time `json:"added_at"`

	IsStale       bool       `json:"is_stale"`
	StaleReason   string     `json:"stale_reason,omitempty"`
	StaleMarkedAt *time.Time `json:"stale_marked_at,omitempty"`

	PulledAt      *time.Time `json:"pulled_at,omitempty"`
	PulledForDate *Date      `json:"pulled_for_date,omitempty"`
	PulledReason  string     `json:"pulled_reason,omitempty"`
}

// RoutingStatusLog is one append-only status transition record.
type RoutingStatusLog struct {
	ID         string        `json:"id"`
	RoutingID  string        `json:"routing_id"`
	FromStatus RoutingStatus `json:"from_status"`
	ToStatus   RoutingStatus `json:"to_status"`
	Reason     string        `json:"reason,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ScheduleEntry is one occupied publication+date position.
type ScheduleEntry struct {
	ID            string        `json:"id"`
	PublicationID string        `json:"publication_id"`
	RoutingID     string        `json:"routing_id"`
	SlotID        string        `json:"slot_id"`
	CalendarDate  Date          `json:"calendar_date"`
	Status        RoutingStatus `json:"status"` // scheduled or published
}

// RubricContribution is one rubric's share of a score, kept for audit.
type RubricContribution struct {
	RubricID         string  `json:"rubric_id"`
	RubricName       string  `json:"rubric_name"`
	RawScore         float64 `json:"raw_score"`
	Weight           float64 `json:"weight"`
	NormalizedWeight float64 `json:"normalized_weight"`
	WeightedScore    float64 `json:"weighted_score"`
	Criterion        string  `json:"criterion,omitempty"`
}

// ModifierApplication records one modifier that matched during scoring.
type ModifierApplication struct {
	RubricID  string  `json:"rubric_id"`
	Condition string  `json:"condition"`
	Modifier  float64 `json:"modifier"`
}

// ScoreBreakdown explains how a publication's total score was computed.
type ScoreBreakdown struct {
	PublicationID string                `json:"publication_id"`
	Contributions []RubricContribution  `json:"contributions"`
	BaseScore     float64               `json:"base_score"`
	Modifiers     []ModifierApplication `json:"modifiers,omitempty"`
	Total         float64               `json:"total"`
	Tier          Tier                  `json:"tier"`
}

// MarshalJSON ensures nil slices in ScoreBreakdown marshal as [] not null.
func (b ScoreBreakdown) MarshalJSON() ([]byte, error) {
	if b.Contributions == nil {
		b.Contributions = []RubricContribution{}
	}
	type Alias ScoreBreakdown
	return json.Marshal(Alias(b))
}

// AlertKind classifies dashboard alerts.
type AlertKind string

const (
	AlertStaleIntake        AlertKind = "stale_intake"
	AlertLowEvergreenBuffer AlertKind = "low_evergreen_buffer"
	AlertSlotConflict       AlertKind = "slot_conflict"
	AlertDuplicateTopic     AlertKind = "duplicate_topic"
)

// Alert is a non-blocking signal surfaced to the dashboard.
type Alert struct {
	ID            string    `json:"id"`
	Kind          AlertKind `json:"kind"`
	PublicationID string    `json:"publication_id,omitempty"`
	RoutingID     string    `json:"routing_id,omitempty"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

// RoutingStats are the read-only dashboard projections.
type RoutingStats struct {
	IdeasByStatus        map[string]int64 `json:"ideas_by_status"`
	IdeasByTier          map[string]int64 `json:"ideas_by_tier"`
	EvergreenQueueCounts map[string]int64 `json:"evergreen_queue_counts"`
	ScheduledThisWeek    int64            `json:"scheduled_this_week"`
	StatsAsOf            time.Time        `json:"stats_as_of"`
}

// MarshalJSON ensures nil maps in RoutingStats marshal as {} not null.
func (s RoutingStats) MarshalJSON() ([]byte, error) {
	if s.IdeasByStatus == nil {
		s.IdeasByStatus = map[string]int64{}
	}
	if s.IdeasByTier == nil {
		s.IdeasByTier = map[string]int64{}
	}
	if s.EvergreenQueueCounts == nil {
		s.EvergreenQueueCounts = map[string]int64{}
	}
	type Alias RoutingStats
	return json.Marshal(Alias(s))
}

// OverrideSpec carries manual override values supplied at intake or later.
// Reason is required whenever any override value is set.
type OverrideSpec struct {
	Destination *Destination `json:"destination,omitempty"`
	Score       *float64     `json:"score,omitempty"`
	SlotID      *string      `json:"slot_id,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

// IntakeRequest is the payload for submitting a captured idea.
type IntakeRequest struct {
	Idea     Idea          `json:"idea"`
	Override *OverrideSpec `json:"override,omitempty"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	IdeaCount     int64     `json:"idea_count"`
	SchemaVersion int       `json:"schema_version"`
	StatsAsOf     time.Time `json:"stats_as_of"`
}

// KillRequest is the payload for terminally marking an idea.
type KillRequest struct {
	Reason string `json:"reason"`
}

// BumpRequest is the payload for displacing a scheduled idea so its
// calendar position can be given to a higher-priority item.
type BumpRequest struct {
	Reason   string `json:"reason"`
	BumpedBy string `json:"bumped_by,omitempty"`
}

// EvergreenPullRequest asks for the best queued idea to fill a date.
type EvergreenPullRequest struct {
	PublicationID string `json:"publication_id"`
	Date          Date   `json:"date"`
	Reason        string `json:"reason,omitempty"`
}

// IdeaDetail is the full read model for one idea: the idea, its routing
// record, and the status trail.
type IdeaDetail struct {
	Idea      Idea               `json:"idea"`
	Routing   IdeaRouting        `json:"routing"`
	StatusLog []RoutingStatusLog `json:"status_log"`
}
