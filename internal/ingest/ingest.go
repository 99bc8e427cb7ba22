package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"salesboard/internal/core"
)

// RecordStore persists accepted records in a single bulk operation.
type RecordStore interface {
	InsertRecords(ctx context.Context, recs []core.SalesRecord) error
}

// EventPublisher is notified after a successful ingestion.
type EventPublisher interface {
	PublishUploadCompleted(ctx context.Context, res core.UploadResult) error
}

// Service is the upload pipeline: parse the spreadsheet, validate and
// coerce rows, bulk-insert the accepted ones.
type Service struct {
	store  RecordStore
	events EventPublisher // optional
}

func NewService(store RecordStore, events EventPublisher) *Service {
	return &Service{store: store, events: events}
}

// Ingest processes the temporary file at path, named originalName by
// the uploader. The file is removed on every exit path. Nothing is
// persisted unless at least one row passes validation, and the bulk
// insert is all-or-nothing.
func (s *Service) Ingest(ctx context.Context, path, originalName string) (core.UploadResult, error) {
	defer removeTemp(ctx, path)

	ext := strings.ToLower(filepath.Ext(originalName))
	rows, err := parseFile(path, ext)
	if err != nil {
		return core.UploadResult{}, err
	}

	accepted := make([]core.SalesRecord, 0, len(rows))
	for _, row := range rows {
		if !row.Valid() {
			continue
		}
		accepted = append(accepted, row.Record())
	}
	skipped := len(rows) - len(accepted)

	if len(accepted) == 0 {
		return core.UploadResult{}, core.ErrNoValidData
	}

	if err := s.store.InsertRecords(ctx, accepted); err != nil {
		return core.UploadResult{}, fmt.Errorf("bulk insert: %w", err)
	}

	res := core.UploadResult{Inserted: len(accepted), Skipped: skipped}
	slog.InfoContext(ctx, "Upload ingested",
		"file", originalName,
		"inserted", res.Inserted,
		"skipped", res.Skipped)

	if s.events != nil {
		if err := s.events.PublishUploadCompleted(ctx, res); err != nil {
			slog.WarnContext(ctx, "Upload event publish failed", "error", err)
		}
	}
	return res, nil
}

// removeTemp deletes the temporary upload. A removal failure is logged
// and never returned, so it cannot mask the primary outcome.
func removeTemp(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.ErrorContext(ctx, "Temp upload cleanup failed", "path", path, "error", err)
	}
}
