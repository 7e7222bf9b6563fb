package routing

import (
	"slices"
	"sort"
	"time"

	"github.com/hyperengineering/deskflow/internal/types"
)

// DefaultHorizonWeeks bounds the forward search for a free slot. Ideas
// that cannot be placed within the horizon fall back to the evergreen
// queue rather than searching indefinitely.
const DefaultHorizonWeeks = 8

// ScheduleSnapshot is an immutable view of a publication's occupied
// dates, passed into slot assignment so the algorithm stays free of
// storage and locking concerns.
type ScheduleSnapshot struct {
	occupied map[string]types.ScheduleEntry
}

// NewScheduleSnapshot indexes existing scheduled and published entries by
// publication and date.
func NewScheduleSnapshot(entries []types.ScheduleEntry) *ScheduleSnapshot {
	s := &ScheduleSnapshot{occupied: make(map[string]types.ScheduleEntry, len(entries))}
	for _, e := range entries {
		s.occupied[scheduleKey(e.PublicationID, e.CalendarDate)] = e
	}
	return s
}

// Occupied reports whether the publication already has an entry on date.
func (s *ScheduleSnapshot) Occupied(publicationID string, date types.Date) bool {
	_, ok := s.occupied[scheduleKey(publicationID, date)]
	return ok
}

func scheduleKey(publicationID string, date types.Date) string {
	return publicationID + "|" + date.String()
}

// AssignInput carries everything slot assignment needs, fetched once by
// the orchestrator and passed in as plain data.
type AssignInput struct {
	Idea        types.Idea
	Tier        types.Tier
	Actions     types.TierActions
	Publication types.Publication
	// Sibling is the unified publication, when one exists; used for
	// stagger date computation.
	Sibling *types.Publication

	Slots    []types.CalendarSlot
	Schedule *ScheduleSnapshot
	AsOf     types.Date

	// HorizonWeeks defaults to DefaultHorizonWeeks when zero.
	HorizonWeeks int

	// ForceSlotID restricts the search to a single slot, bypassing tier
	// filters. Used for manual slot overrides.
	ForceSlotID string

	// PreferredDays lists the tier's preferred publishing weekdays
	// (0 = Sunday). When set, dates on those days are tried across the
	// whole horizon before any other day.
	PreferredDays []int
}

// Assignment is a successful placement.
type Assignment struct {
	SlotID       string     `json:"slot_id"`
	CalendarDate types.Date `json:"calendar_date"`

	IsStaggered          bool       `json:"is_staggered,omitempty"`
	SiblingPublicationID string     `json:"sibling_publication_id,omitempty"`
	SiblingDate          types.Date `json:"sibling_date,omitempty"`
}

// AssignSlot finds the earliest available date within the horizon whose
// day of week matches a ranked candidate slot, is not skip-ruled, and is
// not already occupied for the publication. The boolean result is false
// when no placement exists within the horizon; the caller falls back to
// the evergreen queue rather than treating it as an error.
//
// The walk is bounded and deterministic for a fixed AsOf.
func AssignSlot(in AssignInput) (*Assignment, bool) {
	if in.Tier == types.TierKill {
		return nil, false
	}

	candidates := rankSlots(in)
	if len(candidates) == 0 {
		return nil, false
	}

	horizon := in.HorizonWeeks
	if horizon <= 0 {
		horizon = DefaultHorizonWeeks
	}

	// A first pass honors the tier's preferred publishing days; a second
	// unrestricted pass keeps the horizon guarantee when none of the
	// preferred days can take the idea. Forced slots skip the preference.
	if len(in.PreferredDays) > 0 && in.ForceSlotID == "" {
		if a, ok := walkHorizon(in, candidates, horizon, in.PreferredDays); ok {
			return a, true
		}
	}
	return walkHorizon(in, candidates, horizon, nil)
}

// walkHorizon scans forward day by day for the earliest placement. A
// non-nil days filter restricts candidate dates to those weekdays.
func walkHorizon(in AssignInput, candidates []types.CalendarSlot, horizon int, days []int) (*Assignment, bool) {
	// Candidate dates start the day after AsOf; same-day publishing is
	// never scheduled automatically.
	for offset := 1; offset <= horizon*7; offset++ {
		date := in.AsOf.AddDays(offset)
		if days != nil && !slices.Contains(days, date.Weekday()) {
			continue
		}
		for _, slot := range candidates {
			if slot.DayOfWeek != date.Weekday() {
				continue
			}
			if SkipRuleExcludes(slot.SkipRules, date) {
				continue
			}
			if in.Schedule != nil && in.Schedule.Occupied(in.Publication.ID, date) {
				continue
			}
			a := &Assignment{SlotID: slot.ID, CalendarDate: date}
			applyStagger(a, in)
			return a, true
		}
	}

	return nil, false
}

// rankSlots filters and orders candidate slots. Fixed-format slots
// matching the idea's pre-assigned format rank first; the rest sort by
// tier_priority ascending with slot ID as tiebreak. A slot reserved for a
// strictly higher tier than the idea's is excluded; an unreserved slot or
// one reserved at-or-below the idea's tier is eligible.
func rankSlots(in AssignInput) []types.CalendarSlot {
	var fixed, ranked []types.CalendarSlot
	for _, slot := range in.Slots {
		if !slot.IsActive || slot.PublicationID != in.Publication.ID {
			continue
		}
		if in.ForceSlotID != "" {
			if slot.ID == in.ForceSlotID {
				return []types.CalendarSlot{slot}
			}
			continue
		}
		if slot.IsFixed {
			if in.Idea.PreassignedFormat != "" && slot.FixedFormat == in.Idea.PreassignedFormat {
				fixed = append(fixed, slot)
			}
			// Fixed slots never accept ideas without the matching format.
			continue
		}
		if slot.PreferredTier != "" && slot.PreferredTier.Rank() > in.Tier.Rank() {
			continue
		}
		ranked = append(ranked, slot)
	}

	sort.Slice(fixed, func(i, j int) bool { return fixed[i].ID < fixed[j].ID })
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TierPriority != ranked[j].TierPriority {
			return ranked[i].TierPriority < ranked[j].TierPriority
		}
		return ranked[i].ID < ranked[j].ID
	})

	return append(fixed, ranked...)
}

// applyStagger computes the unified sibling's offset date when the tier's
// actions call for staggering and the publication participates in a
// unified pairing.
func applyStagger(a *Assignment, in AssignInput) {
	if in.Sibling == nil || in.Publication.UnifiedWith == "" {
		return
	}

	var offset int
	switch in.Sibling.Type {
	case types.PublicationVideo:
		offset = in.Actions.StaggerYouTubeDay
	case types.PublicationNewsletter:
		offset = in.Actions.StaggerSubstackDay
	}
	if offset == 0 {
		return
	}

	a.IsStaggered = true
	a.SiblingPublicationID = in.Sibling.ID
	a.SiblingDate = a.CalendarDate.AddDays(offset)
}

// SkipRuleExcludes reports whether any skip rule excludes the date. Rules
// match on MM-DD independent of year; ranges where start > end span year
// end (e.g. 12-20 through 01-05).
func SkipRuleExcludes(rules []types.SkipRule, date types.Date) bool {
	md := date.MonthDay()
	for _, rule := range rules {
		if rule.Date != "" {
			if rule.Date == md {
				return true
			}
			continue
		}
		if rule.Start == "" || rule.End == "" {
			continue
		}
		if rule.Start <= rule.End {
			if md >= rule.Start && md <= rule.End {
				return true
			}
		} else {
			if md >= rule.Start || md <= rule.End {
				return true
			}
		}
	}
	return false
}

// PrepareBump records displacement bookkeeping on a routing record that is
// being moved by a higher-priority insertion, and clears its placement so
// it can be re-assigned as if newly scored.
func PrepareBump(routing *types.IdeaRouting, reason, by string, now time.Time) {
	if routing.OriginalDate == nil && routing.CalendarDate != nil {
		original := *routing.CalendarDate
		routing.OriginalDate = &original
	}
	routing.BumpReason = reason
	routing.BumpedBy = by
	routing.BumpedAt = &now
	routing.BumpCount++

	routing.SlotID = ""
	routing.CalendarDate = nil
	routing.IsStaggered = false
	routing.SiblingPublicationID = ""
	routing.SiblingDate = nil
}
