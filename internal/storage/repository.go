package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"salesboard/internal/core"
)

// maxFilterResults caps the filter endpoint's payload. Callers needing
// more must narrow the filter; there is no pagination cursor.
const maxFilterResults = 1000

// SQLiteRepository persists sales records and computes the grouped
// aggregates served by the gateway.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InsertRecords implements ingest.RecordStore. All records go in a
// single transaction; any failure rolls the whole batch back.
func (r *SQLiteRepository) InsertRecords(ctx context.Context, recs []core.SalesRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sales (id, date, product, category, region, quantity, price, revenue)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), rec.Date, rec.Product, rec.Category, rec.Region,
			rec.Quantity, rec.Price, rec.Revenue); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}

	slog.InfoContext(ctx, "Records saved to SQLite", "count", len(recs))
	return nil
}

// Totals implements sales.Aggregator. An empty matching set yields the
// zero struct, not an error.
func (r *SQLiteRepository) Totals(ctx context.Context, f core.Filter) (core.Totals, error) {
	where, args := whereClause(f)

	var t core.Totals
	row := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0), COALESCE(SUM(revenue), 0), COUNT(*)
		FROM sales`+where, args...)
	if err := row.Scan(&t.TotalQuantity, &t.TotalRevenue, &t.TotalRecords); err != nil {
		return core.Totals{}, fmt.Errorf("query totals: %w", err)
	}
	return t, nil
}

// ListRecords implements sales.Aggregator: matching records sorted by
// date descending, capped at maxFilterResults.
func (r *SQLiteRepository) ListRecords(ctx context.Context, f core.Filter) ([]core.SalesRecord, error) {
	where, args := whereClause(f)
	args = append(args, maxFilterResults)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, product, category, region, quantity, price, revenue
		FROM sales`+where+`
		ORDER BY date DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []core.SalesRecord{}
	for rows.Next() {
		var rec core.SalesRecord
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.Product, &rec.Category, &rec.Region,
			&rec.Quantity, &rec.Price, &rec.Revenue); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Trend implements sales.Aggregator. Buckets are the raw date string
// for daily, its YYYY-MM prefix for monthly; ordering is the bucket
// key ascending. Monthly truncation is a plain substring, it relies on
// dates being well-formed YYYY-MM-DD.
func (r *SQLiteRepository) Trend(ctx context.Context, g core.Granularity) ([]core.TrendPoint, error) {
	bucket := "date"
	if g == core.Monthly {
		bucket = "substr(date, 1, 7)"
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bucket+` AS bucket, COALESCE(SUM(revenue), 0), COALESCE(SUM(quantity), 0)
		FROM sales
		GROUP BY bucket
		ORDER BY bucket ASC`)
	if err != nil {
		return nil, fmt.Errorf("query trend: %w", err)
	}
	defer rows.Close()

	out := []core.TrendPoint{}
	for rows.Next() {
		var p core.TrendPoint
		if err := rows.Scan(&p.Date, &p.Revenue, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend: %w", err)
	}
	return out, nil
}

// Metadata implements sales.Aggregator. The three distinct-value
// queries run concurrently; each list comes back alphabetically
// sorted.
func (r *SQLiteRepository) Metadata(ctx context.Context) (core.Metadata, error) {
	var meta core.Metadata

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		meta.Categories, err = r.distinctValues(gctx, "category")
		return err
	})
	g.Go(func() (err error) {
		meta.Regions, err = r.distinctValues(gctx, "region")
		return err
	})
	g.Go(func() (err error) {
		meta.Products, err = r.distinctValues(gctx, "product")
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Metadata{}, err
	}
	return meta, nil
}

func (r *SQLiteRepository) distinctValues(ctx context.Context, column string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT `+column+` FROM sales ORDER BY `+column+` ASC`)
	if err != nil {
		return nil, fmt.Errorf("query distinct %s: %w", column, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct %s: %w", column, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct %s: %w", column, err)
	}
	return out, nil
}

// whereClause builds the WHERE fragment for a filter. Labels match by
// equality; the date range applies only when both bounds are present
// and compares lexicographically, which is chronological for
// zero-padded ISO dates.
func whereClause(f core.Filter) (string, []any) {
	var conds []string
	var args []any

	if f.Product != "" {
		conds = append(conds, "product = ?")
		args = append(args, f.Product)
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Region != "" {
		conds = append(conds, "region = ?")
		args = append(args, f.Region)
	}
	if f.HasDateRange() {
		conds = append(conds, "date >= ? AND date <= ?")
		args = append(args, f.Start, f.End)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
