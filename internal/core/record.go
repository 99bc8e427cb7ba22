package core

import (
	"errors"
	"strconv"
	"strings"
)

const (
	Daily   Granularity = "daily"
	Monthly Granularity = "monthly"
)

type (
	// Granularity selects the trend bucket size.
	Granularity string

	// SalesRecord is one row of historical sales activity. Dates are
	// zero-padded YYYY-MM-DD strings and compare lexicographically.
	SalesRecord struct {
		ID       string  `json:"id,omitempty"`
		Date     string  `json:"date"`
		Product  string  `json:"product"`
		Category string  `json:"category"`
		Region   string  `json:"region"`
		Quantity float64 `json:"quantity"`
		Price    float64 `json:"price"`
		Revenue  float64 `json:"revenue"`
	}

	// RawRow is one spreadsheet row before coercion. Columns missing
	// from the file leave the matching field empty.
	RawRow struct {
		Date     string
		Product  string
		Category string
		Region   string
		Quantity string
		Price    string
		Revenue  string
	}

	// Filter narrows which records an aggregation considers. The date
	// range is applied only when both Start and End are set.
	Filter struct {
		Product  string
		Category string
		Region   string
		Start    string
		End      string
	}

	// Totals is the summed view over the matching records.
	Totals struct {
		TotalQuantity float64 `json:"totalQuantity"`
		TotalRevenue  float64 `json:"totalRevenue"`
		TotalRecords  int64   `json:"totalRecords"`
	}

	// TrendPoint is one time bucket of the trend series.
	TrendPoint struct {
		Date     string  `json:"date"`
		Revenue  float64 `json:"revenue"`
		Quantity float64 `json:"quantity"`
	}

	// Metadata holds the distinct label sets used to populate
	// selection controls.
	Metadata struct {
		Categories []string `json:"categories"`
		Regions    []string `json:"regions"`
		Products   []string `json:"products"`
	}

	// UploadResult reports the outcome of one ingestion.
	UploadResult struct {
		Inserted int `json:"inserted"`
		Skipped  int `json:"skipped"`
	}
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoValidData       = errors.New("no valid data found in file")
)

// Valid reports whether the row carries every required text field.
// Numeric fields never disqualify a row.
func (r RawRow) Valid() bool {
	return r.Date != "" && r.Product != "" && r.Category != "" && r.Region != ""
}

// Record converts the raw row into a SalesRecord through one coercion
// step: numeric fields that are absent or unparseable become 0 rather
// than failing the row.
func (r RawRow) Record() SalesRecord {
	return SalesRecord{
		Date:     r.Date,
		Product:  r.Product,
		Category: r.Category,
		Region:   r.Region,
		Quantity: numberOrZero(r.Quantity),
		Price:    numberOrZero(r.Price),
		Revenue:  numberOrZero(r.Revenue),
	}
}

func numberOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v != v { // NaN
		return 0
	}
	return v
}

// HasDateRange reports whether both date bounds are present.
func (f Filter) HasDateRange() bool {
	return f.Start != "" && f.End != ""
}

// ParseGranularity maps a query value onto a Granularity. Monthly is
// the default; any explicit value other than "monthly" means daily.
func ParseGranularity(s string) Granularity {
	if s == "" || s == string(Monthly) {
		return Monthly
	}
	return Daily
}

// BucketKey returns the trend grouping key for a date: the full date
// for daily buckets, the YYYY-MM prefix for monthly ones.
func (g Granularity) BucketKey(date string) string {
	if g == Monthly && len(date) > 7 {
		return date[:7]
	}
	return date
}
