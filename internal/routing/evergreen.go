package routing

import (
	"context"
	"sort"
	"time"

	"github.com/hyperengineering/deskflow/internal/types"
	"github.com/oklog/ulid/v2"
)

// DefaultStaleAge is how long an evergreen entry sits in the queue before
// it becomes a staleness-review candidate.
const DefaultStaleAge = 30 * 24 * time.Hour

// EvergreenStore defines the store operations the queue manager needs.
// Implemented by store.SQLiteStore.
type EvergreenStore interface {
	InsertEvergreenEntry(ctx context.Context, entry *types.EvergreenQueueEntry) error
	ListEvergreenEntries(ctx context.Context, publicationID string) ([]types.EvergreenQueueEntry, error)
	UpdateEvergreenEntry(ctx context.Context, entry *types.EvergreenQueueEntry) error
}

// EvergreenManager maintains the per-publication buffer of scored ideas
// awaiting a slot.
type EvergreenManager struct {
	store EvergreenStore
	now   func() time.Time
	newID func() string
}

// NewEvergreenManager creates a manager. now and newID default to
// time.Now and ULID generation when nil; tests inject fixed values.
func NewEvergreenManager(store EvergreenStore, now func() time.Time, newID func() string) *EvergreenManager {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &EvergreenManager{store: store, now: now, newID: newID}
}

// Enqueue parks a scored routing record for the publication.
func (m *EvergreenManager) Enqueue(ctx context.Context, publicationID string, routing *types.IdeaRouting) (*types.EvergreenQueueEntry, error) {
	entry := &types.EvergreenQueueEntry{
		ID:            m.newID(),
		PublicationID: publicationID,
		RoutingID:     routing.ID,
		IdeaID:        routing.IdeaID,
		Score:         routing.Scores[publicationID],
		Tier:          routing.Tier,
		AddedAt:       m.now().UTC(),
	}
	if err := m.store.InsertEvergreenEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// PullForDate removes the best available entry from the queue for the
// requested date: highest tier first, FIFO by added_at within a tier,
// skipping stale and already-pulled entries. Returns nil when the queue
// has no pullable entry.
func (m *EvergreenManager) PullForDate(ctx context.Context, publicationID string, date types.Date, reason string) (*types.EvergreenQueueEntry, error) {
	entries, err := m.store.ListEvergreenEntries(ctx, publicationID)
	if err != nil {
		return nil, err
	}

	entry := SelectPull(entries)
	if entry == nil {
		return nil, nil
	}

	now := m.now().UTC()
	entry.PulledAt = &now
	entry.PulledForDate = &date
	entry.PulledReason = reason
	if err := m.store.UpdateEvergreenEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkStale flags an entry for re-scoring. The entry stays in the queue
// but is excluded from automatic pulls until manually re-scored.
func (m *EvergreenManager) MarkStale(ctx context.Context, entry *types.EvergreenQueueEntry, reason string) error {
	now := m.now().UTC()
	entry.IsStale = true
	entry.StaleReason = reason
	entry.StaleMarkedAt = &now
	return m.store.UpdateEvergreenEntry(ctx, entry)
}

// SelectPull picks the pull candidate from a queue snapshot: the highest
// tier, then the oldest added_at, among non-stale, non-pulled entries.
// Pure selection logic, separated for testability.
func SelectPull(entries []types.EvergreenQueueEntry) *types.EvergreenQueueEntry {
	eligible := make([]types.EvergreenQueueEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsStale || e.PulledAt != nil {
			continue
		}
		eligible = append(eligible, e)
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Tier.Rank() != eligible[j].Tier.Rank() {
			return eligible[i].Tier.Rank() > eligible[j].Tier.Rank()
		}
		return eligible[i].AddedAt.Before(eligible[j].AddedAt)
	})

	pick := eligible[0]
	return &pick
}

// IsStaleCandidate reports whether an entry is due for staleness review:
// it has aged past maxAge, or its idea's time sensitivity was perishable
// (news hook or launch tie) and its window has passed.
func IsStaleCandidate(entry types.EvergreenQueueEntry, sensitivity types.TimeSensitivity, now time.Time, maxAge time.Duration) bool {
	if entry.IsStale || entry.PulledAt != nil {
		return false
	}
	if now.Sub(entry.AddedAt) >= maxAge {
		return true
	}
	// Perishable ideas go stale on a much shorter clock: a news hook or
	// launch tie older than a week has missed its window.
	if sensitivity.Perishable() && now.Sub(entry.AddedAt) >= 7*24*time.Hour {
		return true
	}
	return false
}
