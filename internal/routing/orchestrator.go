package routing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hyperengineering/deskflow/internal/types"
	"github.com/oklog/ulid/v2"
)

// Repository defines the persistence operations the orchestrator drives.
// Implemented by store.SQLiteStore. Configuration reads happen once per
// pipeline invocation; the decision logic itself runs over plain data.
type Repository interface {
	ListRules(ctx context.Context) ([]types.RoutingRule, error)
	ListPublications(ctx context.Context) ([]types.Publication, error)
	ListRubrics(ctx context.Context) ([]types.ScoringRubric, error)
	ListThresholds(ctx context.Context) ([]types.TierThreshold, error)
	ListSlots(ctx context.Context, publicationID string) ([]types.CalendarSlot, error)
	ListSchedule(ctx context.Context, publicationID string, from, to types.Date) ([]types.ScheduleEntry, error)

	CreateIdea(ctx context.Context, idea *types.Idea) error
	GetIdea(ctx context.Context, id string) (*types.Idea, error)
	CreateRouting(ctx context.Context, routing *types.IdeaRouting) error
	GetRouting(ctx context.Context, id string) (*types.IdeaRouting, error)

	// TransitionStatus persists the routing record and appends the status
	// log row in one transaction. It is the only mutation path for status.
	TransitionStatus(ctx context.Context, routing *types.IdeaRouting, from types.RoutingStatus, reason string) error

	// ClaimSlot atomically claims a publication+date position via a
	// conditional insert. Returns false without error when another writer
	// holds the position; the orchestrator refreshes its snapshot and
	// retries.
	ClaimSlot(ctx context.Context, entry *types.ScheduleEntry) (bool, error)

	// ReleaseSlot frees a routing record's claimed calendar position.
	// Published entries are never released.
	ReleaseSlot(ctx context.Context, routingID string) error

	EvergreenStore
}

// EngineConfig carries the tunable engine parameters.
type EngineConfig struct {
	HorizonWeeks   int
	ScorePrecision int
	ClaimRetries   int
}

// PlacementKind classifies where the pipeline left an idea.
type PlacementKind string

const (
	PlacementScheduled PlacementKind = "scheduled"
	PlacementSlotted   PlacementKind = "slotted"
	PlacementEvergreen PlacementKind = "evergreen"
	PlacementKilled    PlacementKind = "killed"
)

// Placement is the pipeline's terminal disposition for one run.
type Placement struct {
	Kind      PlacementKind              `json:"kind"`
	Schedule  *types.ScheduleEntry       `json:"schedule,omitempty"`
	Evergreen *types.EvergreenQueueEntry `json:"evergreen,omitempty"`
}

// PipelineResult carries enough structured detail for a caller to render
// a full explanation: the matched rule, per-publication breakdowns, and
// the final placement.
type PipelineResult struct {
	Idea        types.Idea                       `json:"idea"`
	Routing     types.IdeaRouting                `json:"routing"`
	MatchedRule *types.RoutingRule               `json:"matched_rule,omitempty"`
	Breakdowns  map[string]*types.ScoreBreakdown `json:"breakdowns,omitempty"`
	Placement   Placement                        `json:"placement"`
}

// Orchestrator drives the intake -> routed -> scored -> slotted ->
// scheduled pipeline. It is the sole writer of routing status and the
// sole appender to the status log.
type Orchestrator struct {
	repo      Repository
	evergreen *EvergreenManager
	cfg       EngineConfig
	now       func() time.Time
	newID     func() string
}

// NewOrchestrator creates an orchestrator. now and newID are injectable
// for deterministic tests.
func NewOrchestrator(repo Repository, cfg EngineConfig, now func() time.Time, newID func() string) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	if cfg.ClaimRetries <= 0 {
		cfg.ClaimRetries = 3
	}
	if cfg.HorizonWeeks <= 0 {
		cfg.HorizonWeeks = DefaultHorizonWeeks
	}
	return &Orchestrator{
		repo:      repo,
		evergreen: NewEvergreenManager(repo, now, newID),
		cfg:       cfg,
		now:       now,
		newID:     newID,
	}
}

// ProcessIntake persists a captured idea and runs it through the full
// pipeline. Configuration errors abort this one idea's run; the routing
// record stays at its last good status with the error returned alongside
// the partial result.
func (o *Orchestrator) ProcessIntake(ctx context.Context, idea types.Idea, override *types.OverrideSpec) (*PipelineResult, error) {
	now := o.now().UTC()
	if idea.ID == "" {
		idea.ID = o.newID()
	}
	idea.CreatedAt = now
	idea.UpdatedAt = now
	if err := o.repo.CreateIdea(ctx, &idea); err != nil {
		return nil, fmt.Errorf("create idea: %w", err)
	}

	routing := &types.IdeaRouting{
		ID:        o.newID(),
		IdeaID:    idea.ID,
		Status:    types.StatusIntake,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if override != nil {
		routing.OverrideDestination = override.Destination
		routing.OverrideScore = override.Score
		routing.OverrideSlotID = override.SlotID
		routing.OverrideReason = override.Reason
	}
	if err := o.repo.CreateRouting(ctx, routing); err != nil {
		return nil, fmt.Errorf("create routing: %w", err)
	}

	result := &PipelineResult{Idea: idea, Routing: *routing}
	if err := o.run(ctx, idea, routing, result); err != nil {
		result.Routing = *routing
		return result, err
	}
	result.Routing = *routing
	return result, nil
}

// run executes route -> score -> assign against an intake-status routing
// record.
func (o *Orchestrator) run(ctx context.Context, idea types.Idea, routing *types.IdeaRouting, result *PipelineResult) error {
	if err := o.route(ctx, idea, routing, result); err != nil {
		return err
	}
	primary, band, err := o.score(ctx, idea, routing, result)
	if err != nil {
		return err
	}
	if routing.Status == types.StatusKilled {
		return nil
	}
	return o.assign(ctx, idea, routing, primary, band, result)
}

// route matches the idea against the active rule set and advances
// intake -> routed.
func (o *Orchestrator) route(ctx context.Context, idea types.Idea, routing *types.IdeaRouting, result *PipelineResult) error {
	rules, err := o.repo.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	match, err := Match(rules, MergeRoutingAttrs(idea, routing))
	if err != nil {
		return err
	}
	result.MatchedRule = &match.Rule

	routing.MatchedRuleID = match.Rule.ID
	routing.Destination = match.RoutesTo
	routing.YouTubeVersion = match.YouTubeVersion

	reason := fmt.Sprintf("matched rule %q (priority %d), routes to %s", match.Rule.Name, match.Rule.Priority, match.RoutesTo)
	if routing.OverrideDestination != nil {
		routing.Destination = *routing.OverrideDestination
		reason = fmt.Sprintf("%s; destination overridden to %s: %s", reason, routing.Destination, routing.OverrideReason)
	}

	return o.transition(ctx, routing, types.StatusRouted, reason)
}

// score computes per-publication totals for the routed destination,
// resolves the tier from the primary publication, and advances
// routed -> scored (or scored -> killed for kill-tier ideas).
func (o *Orchestrator) score(ctx context.Context, idea types.Idea, routing *types.IdeaRouting, result *PipelineResult) (*types.Publication, types.TierThreshold, error) {
	pubs, err := o.repo.ListPublications(ctx)
	if err != nil {
		return nil, types.TierThreshold{}, fmt.Errorf("load publications: %w", err)
	}
	targets := targetPublications(routing.Destination, pubs)
	if len(targets) == 0 {
		return nil, types.TierThreshold{}, fmt.Errorf("%w: %s", ErrNoPublication, routing.Destination)
	}

	rubrics, err := o.repo.ListRubrics(ctx)
	if err != nil {
		return nil, types.TierThreshold{}, fmt.Errorf("load rubrics: %w", err)
	}
	thresholds, err := o.repo.ListThresholds(ctx)
	if err != nil {
		return nil, types.TierThreshold{}, fmt.Errorf("load thresholds: %w", err)
	}

	routing.Scores = make(map[string]float64, len(targets))
	result.Breakdowns = make(map[string]*types.ScoreBreakdown, len(targets))
	for _, pub := range targets {
		breakdown, err := Score(idea, pub.ID, rubrics, thresholds, o.cfg.ScorePrecision)
		if err != nil {
			return nil, types.TierThreshold{}, err
		}
		routing.Scores[pub.ID] = breakdown.Total
		result.Breakdowns[pub.ID] = breakdown
	}

	primary := primaryPublication(targets, routing.Scores)
	routing.PublicationID = primary.ID
	routing.Tier = result.Breakdowns[primary.ID].Tier

	reason := fmt.Sprintf("scored %v for %s, tier %s", routing.Scores[primary.ID], primary.Slug, routing.Tier)
	if routing.OverrideScore != nil {
		// The computed score stays in the breakdown for audit; the
		// override replaces the persisted total and re-resolves the tier.
		total := roundHalfEven(clamp(*routing.OverrideScore, 0, 100), o.cfg.ScorePrecision)
		routing.Scores[primary.ID] = total
		tier, err := ResolveTier(total, primary.ID, thresholds)
		if err != nil {
			return nil, types.TierThreshold{}, err
		}
		routing.Tier = tier
		reason = fmt.Sprintf("%s; score overridden to %v (tier %s): %s", reason, total, tier, routing.OverrideReason)
	}

	if err := o.transition(ctx, routing, types.StatusScored, reason); err != nil {
		return nil, types.TierThreshold{}, err
	}

	band, _ := ThresholdFor(routing.Tier, primary.ID, thresholds)
	if routing.Tier == types.TierKill || band.Actions.DoNotProduce {
		killReason := fmt.Sprintf("tier %s: do not produce", routing.Tier)
		if err := o.transition(ctx, routing, types.StatusKilled, killReason); err != nil {
			return nil, types.TierThreshold{}, err
		}
		result.Placement = Placement{Kind: PlacementKilled}
	}
	return &primary, band, nil
}

// assign finds a calendar position for a scored idea, claiming it
// atomically and retrying with a fresh snapshot on claim conflicts. When
// no slot exists within the horizon the idea parks in the evergreen
// queue; the routing record stays at scored.
func (o *Orchestrator) assign(ctx context.Context, idea types.Idea, routing *types.IdeaRouting, primary *types.Publication, band types.TierThreshold, result *PipelineResult) error {
	slots, err := o.repo.ListSlots(ctx, primary.ID)
	if err != nil {
		return fmt.Errorf("load slots: %w", err)
	}

	var sibling *types.Publication
	if primary.UnifiedWith != "" {
		pubs, err := o.repo.ListPublications(ctx)
		if err != nil {
			return fmt.Errorf("load publications: %w", err)
		}
		for i := range pubs {
			if pubs[i].ID == primary.UnifiedWith {
				sibling = &pubs[i]
				break
			}
		}
	}

	asOf := types.DateOf(o.now())
	return o.assignFrom(ctx, idea, routing, primary, sibling, band, slots, asOf, o.cfg.HorizonWeeks, result)
}

func (o *Orchestrator) assignFrom(ctx context.Context, idea types.Idea, routing *types.IdeaRouting, primary, sibling *types.Publication, band types.TierThreshold, slots []types.CalendarSlot, asOf types.Date, horizonWeeks int, result *PipelineResult) error {
	var forceSlot string
	if routing.OverrideSlotID != nil {
		forceSlot = *routing.OverrideSlotID
	}

	for attempt := 0; attempt < o.cfg.ClaimRetries; attempt++ {
		entries, err := o.repo.ListSchedule(ctx, primary.ID, asOf, asOf.AddDays(horizonWeeks*7))
		if err != nil {
			return fmt.Errorf("load schedule: %w", err)
		}

		assignment, ok := AssignSlot(AssignInput{
			Idea:          idea,
			Tier:          routing.Tier,
			Actions:       band.Actions,
			Publication:   *primary,
			Sibling:       sibling,
			Slots:         slots,
			Schedule:      NewScheduleSnapshot(entries),
			AsOf:          asOf,
			HorizonWeeks:  horizonWeeks,
			ForceSlotID:   forceSlot,
			PreferredDays: band.PreferredDays,
		})
		if !ok {
			entry, err := o.evergreen.Enqueue(ctx, primary.ID, routing)
			if err != nil {
				return fmt.Errorf("enqueue evergreen: %w", err)
			}
			result.Placement = Placement{Kind: PlacementEvergreen, Evergreen: entry}
			return nil
		}

		claim := &types.ScheduleEntry{
			ID:            o.newID(),
			PublicationID: primary.ID,
			RoutingID:     routing.ID,
			SlotID:        assignment.SlotID,
			CalendarDate:  assignment.CalendarDate,
			Status:        types.StatusScheduled,
		}
		claimed, err := o.repo.ClaimSlot(ctx, claim)
		if err != nil {
			return fmt.Errorf("claim slot: %w", err)
		}
		if !claimed {
			// Lost the race for this date; refresh the snapshot and retry.
			continue
		}

		routing.SlotID = assignment.SlotID
		date := assignment.CalendarDate
		routing.CalendarDate = &date
		if assignment.IsStaggered {
			routing.IsStaggered = true
			routing.SiblingPublicationID = assignment.SiblingPublicationID
			sibDate := assignment.SiblingDate
			routing.SiblingDate = &sibDate
		}

		reason := fmt.Sprintf("assigned slot %s on %s", assignment.SlotID, assignment.CalendarDate)
		if forceSlot != "" {
			reason = fmt.Sprintf("%s; slot overridden: %s", reason, routing.OverrideReason)
		}
		if err := o.transition(ctx, routing, types.StatusSlotted, reason); err != nil {
			return err
		}

		if idea.RequiresConfirmation {
			result.Placement = Placement{Kind: PlacementSlotted, Schedule: claim}
			return nil
		}
		if err := o.transition(ctx, routing, types.StatusScheduled, "publish date locked"); err != nil {
			return err
		}
		result.Placement = Placement{Kind: PlacementScheduled, Schedule: claim}
		return nil
	}

	return ErrClaimExhausted
}

// Confirm completes scheduling for an idea paused at slotted.
func (o *Orchestrator) Confirm(ctx context.Context, routingID string) (*types.IdeaRouting, error) {
	routing, err := o.repo.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if err := o.transition(ctx, routing, types.StatusScheduled, "assignment confirmed"); err != nil {
		return nil, err
	}
	return routing, nil
}

// Kill terminally marks an idea. Killed is reachable from any non-terminal
// state.
func (o *Orchestrator) Kill(ctx context.Context, routingID, reason string) (*types.IdeaRouting, error) {
	routing, err := o.repo.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "killed manually"
	}
	if err := o.transition(ctx, routing, types.StatusKilled, reason); err != nil {
		return nil, err
	}
	return routing, nil
}

// Rescore re-evaluates an already-scored idea against the current rubric
// configuration. Scores are overwritten in place and the re-evaluation is
// re-logged; status does not walk backward.
func (o *Orchestrator) Rescore(ctx context.Context, routingID string) (*PipelineResult, error) {
	routing, err := o.repo.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if routing.Status != types.StatusScored {
		return nil, fmt.Errorf("%w: rescore requires scored status, have %s", ErrInvalidTransition, routing.Status)
	}
	idea, err := o.repo.GetIdea(ctx, routing.IdeaID)
	if err != nil {
		return nil, err
	}

	pubs, err := o.repo.ListPublications(ctx)
	if err != nil {
		return nil, err
	}
	targets := targetPublications(routing.Destination, pubs)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPublication, routing.Destination)
	}
	rubrics, err := o.repo.ListRubrics(ctx)
	if err != nil {
		return nil, err
	}
	thresholds, err := o.repo.ListThresholds(ctx)
	if err != nil {
		return nil, err
	}

	result := &PipelineResult{Idea: *idea, Breakdowns: make(map[string]*types.ScoreBreakdown, len(targets))}
	routing.Scores = make(map[string]float64, len(targets))
	for _, pub := range targets {
		breakdown, err := Score(*idea, pub.ID, rubrics, thresholds, o.cfg.ScorePrecision)
		if err != nil {
			return nil, err
		}
		routing.Scores[pub.ID] = breakdown.Total
		result.Breakdowns[pub.ID] = breakdown
	}
	primary := primaryPublication(targets, routing.Scores)
	routing.PublicationID = primary.ID
	routing.Tier = result.Breakdowns[primary.ID].Tier
	routing.UpdatedAt = o.now().UTC()

	// Same-status re-log: the one sanctioned case that bypasses the
	// forward-only transition table.
	reason := fmt.Sprintf("re-scored %v for %s, tier %s", routing.Scores[primary.ID], primary.Slug, routing.Tier)
	if err := o.repo.TransitionStatus(ctx, routing, types.StatusScored, reason); err != nil {
		return nil, err
	}

	// Queue entries carry score and tier copies used for pull ordering.
	// Refresh them and lift any staleness hold now that the idea has been
	// re-evaluated.
	for _, pub := range targets {
		entries, err := o.repo.ListEvergreenEntries(ctx, pub.ID)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			entry := entries[i]
			if entry.RoutingID != routing.ID || entry.PulledAt != nil {
				continue
			}
			entry.Score = routing.Scores[pub.ID]
			entry.Tier = routing.Tier
			entry.IsStale = false
			entry.StaleReason = ""
			entry.StaleMarkedAt = nil
			if err := o.repo.UpdateEvergreenEntry(ctx, &entry); err != nil {
				return nil, err
			}
		}
	}

	result.Routing = *routing
	return result, nil
}

// Bump displaces a slotted or scheduled idea to free its calendar
// position for a higher-priority insertion. The schedule entry is
// released, the displacement is recorded on the routing record, and
// assignment re-runs starting after the vacated date so the freed
// position stays open for the incoming item. An idea that cannot be
// re-placed within the horizon parks in the evergreen queue.
func (o *Orchestrator) Bump(ctx context.Context, routingID, reason, by string) (*PipelineResult, error) {
	routing, err := o.repo.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if routing.Status != types.StatusSlotted && routing.Status != types.StatusScheduled {
		return nil, fmt.Errorf("%w: bump requires slotted or scheduled status, have %s", ErrInvalidTransition, routing.Status)
	}
	if routing.CalendarDate == nil {
		return nil, fmt.Errorf("%w: routing %s holds no calendar date", ErrInvalidTransition, routing.ID)
	}
	idea, err := o.repo.GetIdea(ctx, routing.IdeaID)
	if err != nil {
		return nil, err
	}
	if err := o.repo.ReleaseSlot(ctx, routing.ID); err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}

	from := routing.Status
	vacated := *routing.CalendarDate
	PrepareBump(routing, reason, by, o.now().UTC())

	// The displaced idea re-enters the pipeline at scored; like the
	// rescore re-log, this bypasses the forward-only transition table,
	// with the displacement recorded in the status log.
	routing.Status = types.StatusScored
	routing.UpdatedAt = o.now().UTC()
	logReason := fmt.Sprintf("bumped from %s: %s", vacated, reason)
	if err := o.repo.TransitionStatus(ctx, routing, from, logReason); err != nil {
		return nil, err
	}

	pubs, err := o.repo.ListPublications(ctx)
	if err != nil {
		return nil, err
	}
	var primary, sibling *types.Publication
	for i := range pubs {
		if pubs[i].ID == routing.PublicationID {
			primary = &pubs[i]
		}
	}
	if primary == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPublication, routing.PublicationID)
	}
	for i := range pubs {
		if pubs[i].ID == primary.UnifiedWith {
			sibling = &pubs[i]
		}
	}
	thresholds, err := o.repo.ListThresholds(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := o.repo.ListSlots(ctx, primary.ID)
	if err != nil {
		return nil, err
	}

	result := &PipelineResult{Idea: *idea, Routing: *routing}
	band, _ := ThresholdFor(routing.Tier, primary.ID, thresholds)
	if err := o.assignFrom(ctx, *idea, routing, primary, sibling, band, slots, vacated, o.cfg.HorizonWeeks, result); err != nil {
		return nil, err
	}
	result.Routing = *routing
	return result, nil
}

// PullEvergreen pulls the best queue entry for a publication and runs a
// fresh assignment pass targeting the requested date. Returns nil when
// the queue is empty.
func (o *Orchestrator) PullEvergreen(ctx context.Context, publicationID string, date types.Date, reason string) (*PipelineResult, error) {
	entry, err := o.evergreen.PullForDate(ctx, publicationID, date, reason)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	routing, err := o.repo.GetRouting(ctx, entry.RoutingID)
	if err != nil {
		return nil, err
	}
	idea, err := o.repo.GetIdea(ctx, routing.IdeaID)
	if err != nil {
		return nil, err
	}

	pubs, err := o.repo.ListPublications(ctx)
	if err != nil {
		return nil, err
	}
	var primary, sibling *types.Publication
	for i := range pubs {
		if pubs[i].ID == publicationID {
			primary = &pubs[i]
		}
	}
	if primary == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPublication, publicationID)
	}
	for i := range pubs {
		if pubs[i].ID == primary.UnifiedWith {
			sibling = &pubs[i]
		}
	}

	thresholds, err := o.repo.ListThresholds(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := o.repo.ListSlots(ctx, publicationID)
	if err != nil {
		return nil, err
	}

	result := &PipelineResult{Idea: *idea, Routing: *routing}
	band, _ := ThresholdFor(routing.Tier, publicationID, thresholds)
	// The operator picked the date; the tier's day preference must not
	// divert the placement.
	band.PreferredDays = nil
	// Walk starts the day before the requested date so the date itself is
	// the first candidate.
	err = o.assignFrom(ctx, *idea, routing, primary, sibling, band, slots, date.AddDays(-1), 1, result)
	if err != nil {
		return nil, err
	}
	result.Routing = *routing
	return result, nil
}

// transition is the sole status writer. It validates the state machine,
// stamps the record, and persists the update plus the log row atomically
// through the repository.
func (o *Orchestrator) transition(ctx context.Context, routing *types.IdeaRouting, to types.RoutingStatus, reason string) error {
	from := routing.Status
	if !types.ValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	routing.Status = to
	routing.UpdatedAt = o.now().UTC()
	if err := o.repo.TransitionStatus(ctx, routing, from, reason); err != nil {
		routing.Status = from
		return fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}
	return nil
}

// targetPublications resolves a rule destination to the active
// publications it names.
func targetPublications(dest types.Destination, pubs []types.Publication) []types.Publication {
	var slugs []string
	switch dest {
	case types.DestinationCore:
		slugs = []string{"core"}
	case types.DestinationBeginner:
		slugs = []string{"beginner"}
	case types.DestinationBoth:
		slugs = []string{"core", "beginner"}
	}

	var targets []types.Publication
	for _, slug := range slugs {
		for _, p := range pubs {
			if p.IsActive && p.Slug == slug {
				targets = append(targets, p)
			}
		}
	}
	return targets
}

// primaryPublication picks the placement target among scored
// publications: highest total, ties broken by publication ID.
func primaryPublication(targets []types.Publication, scores map[string]float64) types.Publication {
	sorted := make([]types.Publication, len(targets))
	copy(sorted, targets)
	sort.Slice(sorted, func(i, j int) bool {
		if scores[sorted[i].ID] != scores[sorted[j].ID] {
			return scores[sorted[i].ID] > scores[sorted[j].ID]
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
