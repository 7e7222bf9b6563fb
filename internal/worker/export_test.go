package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/deskflow/internal/export"
	"github.com/hyperengineering/deskflow/internal/types"
)

type fakeExporter struct {
	calls []types.Date
	err   error
}

func (f *fakeExporter) Export(ctx context.Context, src export.Source, from types.Date, horizonWeeks int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, from)
	return "exports/schedule/" + from.String() + ".json", nil
}

type emptySource struct{}

func (emptySource) ListScheduleAll(ctx context.Context, from, to types.Date) ([]types.ScheduleEntry, error) {
	return nil, nil
}

func (emptySource) ListPublications(ctx context.Context) ([]types.Publication, error) {
	return nil, nil
}

func TestExportOnce_UsesCurrentDate(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	fake := &fakeExporter{}
	e := NewScheduleExporter(fake, emptySource{}, time.Hour, 8, func() time.Time { return now })

	e.ExportOnce(context.Background())

	if len(fake.calls) != 1 {
		t.Fatalf("export calls = %d, want 1", len(fake.calls))
	}
	if fake.calls[0].String() != "2025-03-03" {
		t.Errorf("export from = %s, want 2025-03-03", fake.calls[0])
	}
}

func TestExportOnce_NotConfiguredIsSilent(t *testing.T) {
	fake := &fakeExporter{err: export.ErrNotConfigured}
	e := NewScheduleExporter(fake, emptySource{}, time.Hour, 8, nil)

	// Must not panic or spin; the not-configured error is swallowed.
	e.ExportOnce(context.Background())
}

func TestExportOnce_UploadFailure(t *testing.T) {
	fake := &fakeExporter{err: errors.New("connection refused")}
	e := NewScheduleExporter(fake, emptySource{}, time.Hour, 8, nil)
	e.ExportOnce(context.Background())
	if len(fake.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(fake.calls))
	}
}

func TestScheduleExporter_RunStops(t *testing.T) {
	fake := &fakeExporter{}
	e := NewScheduleExporter(fake, emptySource{}, 10*time.Millisecond, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
