package worker

import (
	"context"
	"testing"
	"time"

	"github.com/hyperengineering/deskflow/internal/routing"
	"github.com/hyperengineering/deskflow/internal/types"
)

type fakeAlertSource struct {
	pending []routing.PendingIdea
	depths  map[string]int
	pubs    []types.Publication
	topics  []routing.RecentTopic
}

func (f *fakeAlertSource) ListPendingIdeas(ctx context.Context) ([]routing.PendingIdea, error) {
	return f.pending, nil
}

func (f *fakeAlertSource) EvergreenQueueDepths(ctx context.Context) (map[string]int, error) {
	return f.depths, nil
}

func (f *fakeAlertSource) ListPublications(ctx context.Context) ([]types.Publication, error) {
	return f.pubs, nil
}

func (f *fakeAlertSource) ListScheduleAll(ctx context.Context, from, to types.Date) ([]types.ScheduleEntry, error) {
	return nil, nil
}

func (f *fakeAlertSource) ListRecentTopics(ctx context.Context, since time.Time) ([]routing.RecentTopic, error) {
	return f.topics, nil
}

func alertTestConfig() routing.AlertConfig {
	return routing.AlertConfig{
		IntakeFreshness:    48 * time.Hour,
		MinEvergreenBuffer: 3,
		DuplicateWindow:    30 * 24 * time.Hour,
	}
}

func TestAlertScanner_CachesResult(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	src := &fakeAlertSource{
		depths: map[string]int{"pub-core": 1},
		pubs:   []types.Publication{{ID: "pub-core", Name: "Core", IsActive: true}},
	}

	s := NewAlertScanner(src, alertTestConfig(), time.Hour, func() time.Time { return now })

	alerts, scanned := s.Current()
	if alerts != nil || !scanned.IsZero() {
		t.Fatal("scanner has data before first scan")
	}

	s.scanOnce(context.Background())

	alerts, scanned = s.Current()
	if !scanned.Equal(now) {
		t.Errorf("scanned = %v, want %v", scanned, now)
	}
	if len(alerts) != 1 {
		t.Fatalf("len(alerts) = %d, want 1 (low evergreen buffer)", len(alerts))
	}
	if alerts[0].Kind != types.AlertLowEvergreenBuffer {
		t.Errorf("Kind = %q, want %q", alerts[0].Kind, types.AlertLowEvergreenBuffer)
	}
}

func TestAlertScanner_RunScansImmediately(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	src := &fakeAlertSource{
		depths: map[string]int{},
		pubs:   []types.Publication{{ID: "pub-core", Name: "Core", IsActive: true}},
	}
	s := NewAlertScanner(src, alertTestConfig(), time.Hour, func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, scanned := s.Current(); !scanned.IsZero() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first scan did not happen")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
