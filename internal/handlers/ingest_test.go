package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"corpus-ai/internal/indexer"
)

func newTestIngestHandler() *IngestHandler {
	// A pipeline with no backing stores is enough for requests that fail
	// before any store is touched.
	return NewIngestHandler(indexer.NewPipeline(nil, nil, nil, nil, "corpus_chunks", indexer.PipelineOptions{}))
}

func TestIngestHandler_MethodNotAllowed(t *testing.T) {
	handler := newTestIngestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/ingest", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestIngestHandler_InvalidBody(t *testing.T) {
	handler := newTestIngestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestIngestHandler_ReportsFailedPaths(t *testing.T) {
	handler := newTestIngestHandler()

	missing := filepath.Join(t.TempDir(), "missing.txt")
	body, _ := json.Marshal(IngestRequest{Paths: []string{missing}})
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(resp.Reports))
	}
	report := resp.Reports[0]
	if report.Status != indexer.StatusFailed {
		t.Errorf("report status = %q, want %q", report.Status, indexer.StatusFailed)
	}
	if report.Error == "" {
		t.Error("failed report should carry an error message")
	}
}

func TestIngestHandler_RejectsUnknownKindOverride(t *testing.T) {
	handler := newTestIngestHandler()

	body, _ := json.Marshal(IngestRequest{
		Paths: []string{"/corpus/report.dat"},
		Kinds: map[string]string{"/corpus/report.dat": "spreadsheet"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestIngestHandler_UnsupportedFormatReported(t *testing.T) {
	handler := newTestIngestHandler()

	body, _ := json.Marshal(IngestRequest{Paths: []string{"/corpus/archive.zip"}})
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Reports) != 1 || resp.Reports[0].Status != indexer.StatusFailed {
		t.Fatalf("expected one failed report, got %+v", resp.Reports)
	}
}
