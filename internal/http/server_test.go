package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"salesboard/internal/core"
)

type fakeIngestor struct {
	res      core.UploadResult
	err      error
	lastName string
	lastPath string
}

func (f *fakeIngestor) Ingest(ctx context.Context, path, originalName string) (core.UploadResult, error) {
	f.lastPath = path
	f.lastName = originalName
	os.Remove(path)
	if f.err != nil {
		return core.UploadResult{}, f.err
	}
	return f.res, nil
}

type fakeAggregator struct {
	totals     core.Totals
	records    []core.SalesRecord
	trend      []core.TrendPoint
	meta       core.Metadata
	err        error
	lastFilter core.Filter
	lastGran   core.Granularity
}

func (f *fakeAggregator) Totals(ctx context.Context, flt core.Filter) (core.Totals, error) {
	f.lastFilter = flt
	return f.totals, f.err
}

func (f *fakeAggregator) ListRecords(ctx context.Context, flt core.Filter) ([]core.SalesRecord, error) {
	f.lastFilter = flt
	return f.records, f.err
}

func (f *fakeAggregator) Trend(ctx context.Context, g core.Granularity) ([]core.TrendPoint, error) {
	f.lastGran = g
	return f.trend, f.err
}

func (f *fakeAggregator) Metadata(ctx context.Context) (core.Metadata, error) {
	return f.meta, f.err
}

func newTestServer(t *testing.T, ing *fakeIngestor, agg *fakeAggregator) *Server {
	t.Helper()
	return NewServer(":0", ing, agg, t.TempDir(), 10<<20)
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestUploadSuccess(t *testing.T) {
	ing := &fakeIngestor{res: core.UploadResult{Inserted: 3, Skipped: 1}}
	srv := newTestServer(t, ing, &fakeAggregator{})

	body, ctype := multipartBody(t, "file", "sales.csv", "date,product,category,region\n2024-01-05,A,X,East\n")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sales/upload", body)
	req.Header.Set("Content-Type", ctype)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	got := decodeBody(t, rr)
	if got["message"] != "File uploaded successfully" || got["inserted"] != float64(3) || got["skipped"] != float64(1) {
		t.Fatalf("unexpected body: %v", got)
	}
	if ing.lastName != "sales.csv" {
		t.Fatalf("original name not forwarded: %q", ing.lastName)
	}
	if ing.lastPath == "" {
		t.Fatalf("no temp path handed to ingestor")
	}
}

func TestUploadMissingFilePart(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeAggregator{})

	body, ctype := multipartBody(t, "other", "sales.csv", "x")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sales/upload", body)
	req.Header.Set("Content-Type", ctype)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeBody(t, rr); got["message"] != "No file uploaded" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestUploadTooLarge(t *testing.T) {
	srv := NewServer(":0", &fakeIngestor{}, &fakeAggregator{}, t.TempDir(), 64)

	big := make([]byte, 4096)
	body, ctype := multipartBody(t, "file", "sales.csv", string(big))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sales/upload", body)
	req.Header.Set("Content-Type", ctype)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr); got["message"] != "Upload too large" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestUploadErrorMapping(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{core.ErrUnsupportedFormat, http.StatusBadRequest, "Invalid file format. Only CSV, XLSX, and XLS are supported."},
		{core.ErrNoValidData, http.StatusBadRequest, "No valid data found in file"},
		{errors.New("disk full"), http.StatusInternalServerError, "Upload failed"},
	}
	for i, tc := range cases {
		srv := newTestServer(t, &fakeIngestor{err: tc.err}, &fakeAggregator{})

		body, ctype := multipartBody(t, "file", "sales.csv", "whatever")
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sales/upload", body)
		req.Header.Set("Content-Type", ctype)
		srv.Handler.ServeHTTP(rr, req)

		if rr.Code != tc.status {
			t.Fatalf("case %d: status = %d, want %d", i, rr.Code, tc.status)
		}
		got := decodeBody(t, rr)
		if got["message"] != tc.message {
			t.Fatalf("case %d: message = %v, want %q", i, got["message"], tc.message)
		}
		if tc.status == http.StatusInternalServerError && got["error"] == nil {
			t.Fatalf("case %d: 500 responses should carry error detail", i)
		}
	}
}

func TestTotalsPassesFilter(t *testing.T) {
	agg := &fakeAggregator{totals: core.Totals{TotalQuantity: 5, TotalRevenue: 500, TotalRecords: 2}}
	srv := newTestServer(t, &fakeIngestor{}, agg)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sales/totals?start=2024-01-01&end=2024-01-31", nil)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if agg.lastFilter.Start != "2024-01-01" || agg.lastFilter.End != "2024-01-31" {
		t.Fatalf("filter not forwarded: %+v", agg.lastFilter)
	}
	got := decodeBody(t, rr)
	if got["totalQuantity"] != float64(5) || got["totalRevenue"] != float64(500) || got["totalRecords"] != float64(2) {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestFilterPassesAllParams(t *testing.T) {
	agg := &fakeAggregator{records: []core.SalesRecord{{Date: "2024-01-05", Product: "A"}}}
	srv := newTestServer(t, &fakeIngestor{}, agg)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/sales/filter?product=Laptop&category=Electronics&region=East&start=2024-01-01&end=2024-12-31", nil)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	want := core.Filter{Product: "Laptop", Category: "Electronics", Region: "East", Start: "2024-01-01", End: "2024-12-31"}
	if agg.lastFilter != want {
		t.Fatalf("filter = %+v, want %+v", agg.lastFilter, want)
	}

	var recs []core.SalesRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &recs); err != nil || len(recs) != 1 {
		t.Fatalf("body should be a record array: %s", rr.Body.String())
	}
}

func TestTrendDefaultsToMonthly(t *testing.T) {
	agg := &fakeAggregator{trend: []core.TrendPoint{{Date: "2024-01", Revenue: 500, Quantity: 5}}}
	srv := newTestServer(t, &fakeIngestor{}, agg)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sales/trend", nil)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if agg.lastGran != core.Monthly {
		t.Fatalf("granularity = %q, want monthly", agg.lastGran)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/sales/trend?type=daily", nil)
	srv.Handler.ServeHTTP(rr, req)
	if agg.lastGran != core.Daily {
		t.Fatalf("granularity = %q, want daily", agg.lastGran)
	}
}

func TestMetadataEndpoint(t *testing.T) {
	agg := &fakeAggregator{meta: core.Metadata{
		Categories: []string{"X", "Y"},
		Regions:    []string{"East", "West"},
		Products:   []string{"A", "B"},
	}}
	srv := newTestServer(t, &fakeIngestor{}, agg)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sales/meta", nil)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	got := decodeBody(t, rr)
	for _, key := range []string{"categories", "regions", "products"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("body missing %q: %v", key, got)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeAggregator{})

	for _, path := range []string{"/api/sales/totals", "/api/sales/filter", "/api/sales/trend", "/api/sales/meta"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, path, nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: status = %d, want 405", path, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sales/upload", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("upload GET: status = %d, want 405", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeIngestor{}, &fakeAggregator{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}
}

func TestUploadRateLimited(t *testing.T) {
	ing := &fakeIngestor{res: core.UploadResult{Inserted: 1}}
	srv := newTestServer(t, ing, &fakeAggregator{})

	var last int
	for i := 0; i < 61; i++ {
		body, ctype := multipartBody(t, "file", fmt.Sprintf("s%d.csv", i), "x")
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sales/upload", body)
		req.Header.Set("Content-Type", ctype)
		srv.Handler.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("61st upload status = %d, want 429", last)
	}
}
