package handlers

import (
	"encoding/json"
	"net/http"

	"corpus-ai/internal/contextutil"
	"corpus-ai/internal/indexer"
)

// StatsHandler handles HTTP requests for index coverage statistics.
type StatsHandler struct {
	pipeline       *indexer.Pipeline
	embeddingModel string
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(pipeline *indexer.Pipeline, embeddingModel string) *StatsHandler {
	return &StatsHandler{
		pipeline:       pipeline,
		embeddingModel: embeddingModel,
	}
}

// ServeHTTP handles HTTP requests for index coverage statistics.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.pipeline.GetCoverageStats(ctx, h.embeddingModel)
	if err != nil {
		logger.ErrorContext(ctx, "failed to get coverage stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to get coverage stats")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func (h *StatsHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
