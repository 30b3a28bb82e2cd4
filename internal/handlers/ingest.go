package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"corpus-ai/internal/contextutil"
	"corpus-ai/internal/extract"
	"corpus-ai/internal/indexer"
)

// IngestHandler handles HTTP requests for triggering ingestion.
type IngestHandler struct {
	pipeline *indexer.Pipeline
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(pipeline *indexer.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

// IngestRequest represents the request payload for the ingest endpoint.
// Paths lists the documents to ingest; an empty list triggers a full
// corpus scan in the background. Kinds optionally overrides the source
// kind per path for files whose extension does not identify them.
type IngestRequest struct {
	Paths []string          `json:"paths,omitempty"`
	Kinds map[string]string `json:"kinds,omitempty"`
}

// IngestResponse represents the synchronous response for explicit paths.
type IngestResponse struct {
	Reports []indexer.DocumentReport `json:"reports"`
}

// IngestAcceptedResponse represents the response for a background scan.
type IngestAcceptedResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP handles HTTP requests for triggering ingestion. Explicit
// paths are ingested synchronously and the per-document reports are
// returned; an empty request starts a full corpus scan in the background.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Paths) == 0 {
		h.startFullScan(logger, w)
		return
	}

	kinds := make(map[string]extract.SourceKind, len(req.Kinds))
	for path, name := range req.Kinds {
		kind, err := extract.ParseKind(name)
		if err != nil {
			logger.WarnContext(ctx, "invalid kind override", "path", path, "kind", name)
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown source kind %q", name))
			return
		}
		kinds[path] = kind
	}

	logger.InfoContext(ctx, "ingestion triggered via API", "paths", len(req.Paths))

	reports, err := h.pipeline.IngestPathsWithKinds(ctx, req.Paths, kinds)
	if err != nil {
		logger.ErrorContext(ctx, "ingestion aborted", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Ingestion aborted")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(IngestResponse{Reports: reports}); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// startFullScan kicks off a corpus-wide ingestion in the background so it
// does not block the HTTP response. The background context keeps the scan
// running after the request completes.
func (h *IngestHandler) startFullScan(logger *slog.Logger, w http.ResponseWriter) {
	go func() {
		scanCtx := context.Background()
		reports, err := h.pipeline.IngestAll(scanCtx)
		if err != nil {
			logger.ErrorContext(scanCtx, "corpus scan aborted", "error", err)
			return
		}
		logger.InfoContext(scanCtx, "corpus scan completed", "documents", len(reports))
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(IngestAcceptedResponse{
		Message: "Corpus scan started. Check server logs for progress.",
		Status:  "accepted",
	})
}

// writeError writes an error response.
func (h *IngestHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
