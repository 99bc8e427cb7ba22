package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salesboard/internal/core"
)

// handleUpload accepts a multipart upload (field "file"), stores it
// under the upload directory and runs the ingestion pipeline. The size
// cap is enforced before any parsing happens.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		jsonMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		// The multipart reader does not always wrap MaxBytesError, so
		// match on the message too.
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			jsonMessage(w, http.StatusBadRequest, "Upload too large")
			return
		}
		jsonMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	tmpPath, err := s.saveUpload(file, header.Filename)
	if err != nil {
		slog.ErrorContext(r.Context(), "Saving upload failed", "error", err, "file", header.Filename)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "Upload failed",
			"error":   err.Error(),
		})
		return
	}

	res, err := s.ingestor.Ingest(r.Context(), tmpPath, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUnsupportedFormat):
			jsonMessage(w, http.StatusBadRequest, "Invalid file format. Only CSV, XLSX, and XLS are supported.")
		case errors.Is(err, core.ErrNoValidData):
			jsonMessage(w, http.StatusBadRequest, "No valid data found in file")
		default:
			slog.ErrorContext(r.Context(), "Upload failed", "error", err, "file", header.Filename)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"message": "Upload failed",
				"error":   err.Error(),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "File uploaded successfully",
		"inserted": res.Inserted,
		"skipped":  res.Skipped,
	})
}

// saveUpload copies the multipart part to a timestamped file in the
// upload directory, keeping the original extension so the ingestor can
// route on it.
func (s *Server) saveUpload(file io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := fmt.Sprintf("%d%s", time.Now().UnixNano(), filepath.Ext(originalName))
	path := filepath.Join(s.uploadDir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temp upload: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp upload: %w", err)
	}
	return path, nil
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}

	totals, err := s.aggregator.Totals(r.Context(), parseFilter(r))
	if err != nil {
		slog.ErrorContext(r.Context(), "Totals query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "Error fetching totals",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}

	recs, err := s.aggregator.ListRecords(r.Context(), parseFilter(r))
	if err != nil {
		slog.ErrorContext(r.Context(), "Filter query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "Error filtering data",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}

	g := core.ParseGranularity(r.URL.Query().Get("type"))
	points, err := s.aggregator.Trend(r.Context(), g)
	if err != nil {
		slog.ErrorContext(r.Context(), "Trend query failed", "error", err, "granularity", string(g))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "Error fetching trend",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}

	meta, err := s.aggregator.Metadata(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Metadata query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "Error fetching metadata",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func rejectNonGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return false
	}
	w.Header().Set("Allow", "GET")
	jsonMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	return true
}
