package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"corpus-ai/internal/llm"
	"corpus-ai/internal/rag"
)

// fakeEngine is a stub retrieval engine for handler tests.
type fakeEngine struct {
	resp    *rag.SearchResponse
	err     error
	lastReq rag.SearchRequest
}

func (f *fakeEngine) Search(_ context.Context, req rag.SearchRequest) (*rag.SearchResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestSearchHandler_ReturnsResults(t *testing.T) {
	engine := &fakeEngine{
		resp: &rag.SearchResponse{
			Results: []rag.Result{
				{
					ChunkID:      "c1",
					DocumentID:   "doc-a",
					Title:        "Q3 Report",
					SourcePath:   "/corpus/q3.pdf",
					Locator:      "page:4",
					Text:         "Revenue grew 12% quarter over quarter.",
					Score:        0.81,
					DenseScore:   0.77,
					LexicalScore: 5.2,
				},
			},
		},
	}
	handler := NewSearchHandler(engine)

	body, _ := json.Marshal(SearchRequest{
		Query:   "quarterly revenue",
		TopK:    3,
		Filters: SearchFilters{Kind: "pdf"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if engine.lastReq.TopK != 3 || engine.lastReq.Filters.Kind != "pdf" {
		t.Errorf("engine request = %+v, want top_k 3 and kind pdf", engine.lastReq)
	}

	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	got := resp.Results[0]
	if got.ChunkID != "c1" || got.Title != "Q3 Report" || got.Locator != "page:4" {
		t.Errorf("unexpected result: %+v", got)
	}
	if got.DenseScore != 0.77 || got.LexicalScore != 5.2 {
		t.Errorf("constituent scores lost: %+v", got)
	}
}

func TestSearchHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		engineErr  error
		wantStatus int
	}{
		{
			name:       "method not allowed",
			method:     http.MethodGet,
			body:       `{"query":"x"}`,
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "invalid body",
			method:     http.MethodPost,
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty query",
			method:     http.MethodPost,
			body:       `{"query":"  "}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "index unavailable",
			method:     http.MethodPost,
			body:       `{"query":"revenue"}`,
			engineErr:  rag.ErrIndexUnavailable,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "embedding service rate limited",
			method:     http.MethodPost,
			body:       `{"query":"revenue"}`,
			engineErr:  llm.ErrRateLimited,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "internal error",
			method:     http.MethodPost,
			body:       `{"query":"revenue"}`,
			engineErr:  errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSearchHandler(&fakeEngine{err: tt.engineErr})
			req := httptest.NewRequest(tt.method, "/api/search", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var errResp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("error responses must be JSON: %v", err)
			}
			if errResp.Error == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}
