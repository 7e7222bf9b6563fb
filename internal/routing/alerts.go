package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperengineering/deskflow/internal/types"
)

// AlertConfig tunes the dashboard alert scan.
type AlertConfig struct {
	// IntakeFreshness is how long a time-sensitive idea may sit in
	// intake/routed before it alerts.
	IntakeFreshness time.Duration
	// MinEvergreenBuffer is the queue depth below which a publication's
	// evergreen buffer alerts.
	MinEvergreenBuffer int
	// DuplicateWindow bounds how far back the duplicate-topic scan looks.
	DuplicateWindow time.Duration
}

// PendingIdea is a routing record still ahead of scoring, joined with the
// idea fields the scan needs.
type PendingIdea struct {
	RoutingID   string
	Title       string
	Status      types.RoutingStatus
	Sensitivity types.TimeSensitivity
	CreatedAt   time.Time
}

// RecentTopic is a recently routed idea title used by the duplicate scan.
type RecentTopic struct {
	RoutingID string
	Title     string
}

// AlertSource defines the reads the alert scan performs. Implemented by
// store.SQLiteStore.
type AlertSource interface {
	ListPendingIdeas(ctx context.Context) ([]PendingIdea, error)
	EvergreenQueueDepths(ctx context.Context) (map[string]int, error)
	ListPublications(ctx context.Context) ([]types.Publication, error)
	ListScheduleAll(ctx context.Context, from, to types.Date) ([]types.ScheduleEntry, error)
	ListRecentTopics(ctx context.Context, since time.Time) ([]RecentTopic, error)
}

// ScanAlerts gathers current state and builds the dashboard alert list.
// Alerts are advisory signals for a human operator, never blocking.
func ScanAlerts(ctx context.Context, src AlertSource, cfg AlertConfig, now time.Time) ([]types.Alert, error) {
	pending, err := src.ListPendingIdeas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending ideas: %w", err)
	}
	depths, err := src.EvergreenQueueDepths(ctx)
	if err != nil {
		return nil, fmt.Errorf("evergreen depths: %w", err)
	}
	pubs, err := src.ListPublications(ctx)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	from := types.DateOf(now).AddDays(-7)
	to := types.DateOf(now).AddDays(DefaultHorizonWeeks * 7)
	schedule, err := src.ListScheduleAll(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	topics, err := src.ListRecentTopics(ctx, now.Add(-cfg.DuplicateWindow))
	if err != nil {
		return nil, fmt.Errorf("list recent topics: %w", err)
	}

	return BuildAlerts(pending, depths, pubs, schedule, topics, cfg, now), nil
}

// BuildAlerts derives the alert set from plain data. Pure and
// deterministic for fixed inputs.
func BuildAlerts(pending []PendingIdea, depths map[string]int, pubs []types.Publication, schedule []types.ScheduleEntry, topics []RecentTopic, cfg AlertConfig, now time.Time) []types.Alert {
	var alerts []types.Alert

	// Time-sensitive ideas stuck ahead of scoring.
	for _, p := range pending {
		if !p.Sensitivity.Perishable() {
			continue
		}
		age := now.Sub(p.CreatedAt)
		if age >= cfg.IntakeFreshness {
			alerts = append(alerts, types.Alert{
				Kind:      types.AlertStaleIntake,
				RoutingID: p.RoutingID,
				Message:   fmt.Sprintf("time-sensitive idea %q has been %s for %dh", p.Title, p.Status, int(age.Hours())),
				CreatedAt: now,
			})
		}
	}

	// Evergreen buffers below the configured floor.
	for _, pub := range pubs {
		if !pub.IsActive {
			continue
		}
		if depths[pub.ID] < cfg.MinEvergreenBuffer {
			alerts = append(alerts, types.Alert{
				Kind:          types.AlertLowEvergreenBuffer,
				PublicationID: pub.ID,
				Message:       fmt.Sprintf("evergreen buffer for %s at %d, below minimum %d", pub.Name, depths[pub.ID], cfg.MinEvergreenBuffer),
				CreatedAt:     now,
			})
		}
	}

	// Two scheduled entries on the same publication+date. The claim path
	// enforces uniqueness, so a duplicate here means the schedule was
	// written outside the engine.
	seen := make(map[string]types.ScheduleEntry, len(schedule))
	for _, e := range schedule {
		key := scheduleKey(e.PublicationID, e.CalendarDate)
		if prior, dup := seen[key]; dup {
			alerts = append(alerts, types.Alert{
				Kind:          types.AlertSlotConflict,
				PublicationID: e.PublicationID,
				Message:       fmt.Sprintf("duplicate schedule on %s: routings %s and %s", e.CalendarDate, prior.RoutingID, e.RoutingID),
				CreatedAt:     now,
			})
			continue
		}
		seen[key] = e
	}

	// Duplicate-topic heuristic over recently routed titles.
	for i := 0; i < len(topics); i++ {
		for j := i + 1; j < len(topics); j++ {
			if TopicSimilarity(topics[i].Title, topics[j].Title) >= duplicateTopicThreshold {
				alerts = append(alerts, types.Alert{
					Kind:      types.AlertDuplicateTopic,
					RoutingID: topics[i].RoutingID,
					Message:   fmt.Sprintf("possible duplicate topics: %q and %q", topics[i].Title, topics[j].Title),
					CreatedAt: now,
				})
			}
		}
	}

	sortAlerts(alerts)
	return alerts
}

const duplicateTopicThreshold = 0.6

// TopicSimilarity computes Jaccard overlap between normalized title token
// sets. Lexical only; similarity of meaning is out of scope.
func TopicSimilarity(a, b string) float64 {
	ta := titleTokens(a)
	tb := titleTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if tb[tok] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

// stopwords excluded from topic comparison.
var topicStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true,
	"for": true, "and": true, "or": true, "in": true, "on": true,
	"with": true, "how": true, "your": true, "you": true, "is": true,
}

func titleTokens(title string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(title)) {
		tok := strings.Trim(field, ".,:;!?\"'()[]")
		if len(tok) < 2 || topicStopwords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}

// sortAlerts orders alerts deterministically for stable API output.
func sortAlerts(alerts []types.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Kind != alerts[j].Kind {
			return alerts[i].Kind < alerts[j].Kind
		}
		return alerts[i].Message < alerts[j].Message
	})
}
