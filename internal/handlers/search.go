package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"corpus-ai/internal/contextutil"
	"corpus-ai/internal/llm"
	"corpus-ai/internal/rag"
)

// SearchHandler handles HTTP requests for hybrid retrieval queries.
type SearchHandler struct {
	engine rag.Engine
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine rag.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// SearchRequest represents the HTTP request payload for retrieval queries.
// This mirrors rag.SearchRequest but is defined here for HTTP layer separation.
type SearchRequest struct {
	Query   string        `json:"query"`
	TopK    int           `json:"top_k,omitempty"`
	Filters SearchFilters `json:"filters,omitempty"`
}

// SearchFilters narrows a query to a document or source kind.
type SearchFilters struct {
	DocumentID string `json:"document_id,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// SearchResponse represents the HTTP response payload for retrieval queries.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// SearchResult represents one retrieved chunk in the HTTP response.
type SearchResult struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	Title        string  `json:"title"`
	SourcePath   string  `json:"source_path"`
	Locator      string  `json:"locator"`
	Section      string  `json:"section,omitempty"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	DenseScore   float64 `json:"dense_score"`
	LexicalScore float64 `json:"lexical_score"`
	IsTable      bool    `json:"is_table,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles HTTP requests for retrieval queries.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		logger.WarnContext(ctx, "empty query in request")
		h.writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if req.TopK < 0 {
		req.TopK = 0
	}

	resp, err := h.engine.Search(ctx, rag.SearchRequest{
		Query: req.Query,
		TopK:  req.TopK,
		Filters: rag.SearchFilters{
			DocumentID: req.Filters.DocumentID,
			Kind:       req.Filters.Kind,
		},
	})
	if err != nil {
		h.handleSearchError(w, r, err)
		return
	}

	results := make([]SearchResult, len(resp.Results))
	for i, res := range resp.Results {
		results[i] = SearchResult{
			ChunkID:      res.ChunkID,
			DocumentID:   res.DocumentID,
			Title:        res.Title,
			SourcePath:   res.SourcePath,
			Locator:      res.Locator,
			Section:      res.Section,
			Text:         res.Text,
			Score:        res.Score,
			DenseScore:   res.DenseScore,
			LexicalScore: res.LexicalScore,
			IsTable:      res.IsTable,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(SearchResponse{Results: results}); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// handleSearchError maps retrieval errors to HTTP status codes.
func (h *SearchHandler) handleSearchError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "search failed", "error", err)

	switch {
	case errors.Is(err, rag.ErrIndexUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "Index unavailable")
	case errors.Is(err, llm.ErrRateLimited), errors.Is(err, llm.ErrServiceUnavailable):
		h.writeError(w, http.StatusBadGateway, "Embedding service error")
	default:
		h.writeError(w, http.StatusInternalServerError, "Failed to process search query")
	}
}

// writeError writes an error response.
func (h *SearchHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
