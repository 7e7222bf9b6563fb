// Package export publishes schedule snapshots to S3-compatible storage so
// downstream calendar tooling can consume them. When export is not
// configured (disabled or empty endpoint), the NoopExporter is used and
// all uploads are skipped, keeping the system in local-only mode.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/deskflow/internal/config"
	"github.com/hyperengineering/deskflow/internal/types"
)

// ErrNotConfigured is returned when schedule export is not configured.
var ErrNotConfigured = errors.New("schedule export not configured")

// Source provides the schedule window an export covers.
type Source interface {
	ListScheduleAll(ctx context.Context, from, to types.Date) ([]types.ScheduleEntry, error)
	ListPublications(ctx context.Context) ([]types.Publication, error)
}

// Snapshot is the exported document shape.
type Snapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	From        types.Date      `json:"from"`
	To          types.Date      `json:"to"`
	Entries     []SnapshotEntry `json:"entries"`
}

// SnapshotEntry is one scheduled position enriched with the publication
// slug for consumers that do not know internal IDs.
type SnapshotEntry struct {
	PublicationID   string              `json:"publication_id"`
	PublicationSlug string              `json:"publication_slug"`
	CalendarDate    types.Date          `json:"calendar_date"`
	RoutingID       string              `json:"routing_id"`
	SlotID          string              `json:"slot_id,omitempty"`
	Status          types.RoutingStatus `json:"status"`
}

// Exporter publishes the upcoming schedule window.
type Exporter interface {
	// Export gathers the schedule from from through horizonWeeks and
	// uploads it. Returns the object key written.
	Export(ctx context.Context, src Source, from types.Date, horizonWeeks int) (string, error)
}

// objectPutter defines the minimal minio.Client operations used by
// S3Exporter. This interface enables testing with mock implementations.
type objectPutter interface {
	PutObject(ctx context.Context, bucket, objectName string, body []byte) error
}

// minioClientWrapper wraps *minio.Client to satisfy the objectPutter
// interface with the concrete minio option types filled in.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, body []byte) error {
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	_, err := w.client.PutObject(ctx, bucket, objectName, bytes.NewReader(body), int64(len(body)), opts)
	return err
}

// S3Exporter uploads schedule snapshots to S3-compatible storage.
type S3Exporter struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// Export builds the snapshot document and uploads it.
func (e *S3Exporter) Export(ctx context.Context, src Source, from types.Date, horizonWeeks int) (string, error) {
	to := from.AddDays(horizonWeeks * 7)

	entries, err := src.ListScheduleAll(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("list schedule: %w", err)
	}
	pubs, err := src.ListPublications(ctx)
	if err != nil {
		return "", fmt.Errorf("list publications: %w", err)
	}
	slugs := make(map[string]string, len(pubs))
	for _, p := range pubs {
		slugs[p.ID] = p.Slug
	}

	snap := Snapshot{
		GeneratedAt: e.now().UTC(),
		From:        from,
		To:          to,
		Entries:     make([]SnapshotEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		snap.Entries = append(snap.Entries, SnapshotEntry{
			PublicationID:   entry.PublicationID,
			PublicationSlug: slugs[entry.PublicationID],
			CalendarDate:    entry.CalendarDate,
			RoutingID:       entry.RoutingID,
			SlotID:          entry.SlotID,
			Status:          entry.Status,
		})
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	key := e.objectKey(from)
	if err := e.client.PutObject(ctx, e.bucket, key, body); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return key, nil
}

// objectKey returns the object key for a snapshot starting at from.
// Convention: {prefix}/schedule/{from}.json
func (e *S3Exporter) objectKey(from types.Date) string {
	if e.prefix == "" {
		return "schedule/" + from.String() + ".json"
	}
	return e.prefix + "/schedule/" + from.String() + ".json"
}

// NoopExporter is used when export is not configured.
type NoopExporter struct{}

// Export returns ErrNotConfigured without uploading anything.
func (e *NoopExporter) Export(ctx context.Context, src Source, from types.Date, horizonWeeks int) (string, error) {
	return "", ErrNotConfigured
}

// NewExporter creates the appropriate Exporter based on configuration.
// Returns NoopExporter when export is disabled, S3Exporter otherwise.
func NewExporter(cfg config.ExportConfig) (Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return &NoopExporter{}, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Exporter{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}
