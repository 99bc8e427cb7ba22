package sales

import (
	"context"

	"salesboard/internal/core"
)

// Ports consumed by the HTTP gateway.
type (
	// Ingestor runs the upload pipeline for a saved temporary file and
	// removes it afterwards, on success and on failure.
	Ingestor interface {
		Ingest(ctx context.Context, path, originalName string) (core.UploadResult, error)
	}

	// Aggregator exposes the read-only queries over the persisted
	// record collection.
	Aggregator interface {
		Totals(ctx context.Context, f core.Filter) (core.Totals, error)
		ListRecords(ctx context.Context, f core.Filter) ([]core.SalesRecord, error)
		Trend(ctx context.Context, g core.Granularity) ([]core.TrendPoint, error)
		Metadata(ctx context.Context) (core.Metadata, error)
	}
)
