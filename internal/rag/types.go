package rag

import "errors"

// ErrIndexUnavailable is returned when neither half of the hybrid index can
// serve a query.
var ErrIndexUnavailable = errors.New("index unavailable")

// SearchFilters restricts a query to a document or a source kind. Zero
// values mean no restriction.
type SearchFilters struct {
	DocumentID string `json:"document_id,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// SearchRequest represents a hybrid retrieval query.
type SearchRequest struct {
	// Query is the user's search text.
	Query string `json:"query"`
	// TopK optionally specifies the desired result count.
	TopK int `json:"top_k,omitempty"`
	// Filters optionally narrows the search to a document or kind.
	Filters SearchFilters `json:"filters,omitempty"`
}

// Result represents one retrieved chunk with its fused score and the
// constituent scores it was fused from.
type Result struct {
	// ChunkID is the stable chunk identifier.
	ChunkID string `json:"chunk_id"`
	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`
	// Title is the source document title.
	Title string `json:"title"`
	// SourcePath is the path the document was ingested from.
	SourcePath string `json:"source_path"`
	// Locator places the chunk within its document (page, slide, timestamp).
	Locator string `json:"locator"`
	// Section is the heading or sheet the chunk came from, when known.
	Section string `json:"section,omitempty"`
	// Text is the chunk text.
	Text string `json:"text"`
	// Score is the fused ranking score.
	Score float64 `json:"score"`
	// DenseScore is the raw vector similarity, zero when the chunk was not
	// returned by the dense branch.
	DenseScore float64 `json:"dense_score"`
	// LexicalScore is the raw BM25 score, zero when the chunk was not
	// returned by the lexical branch.
	LexicalScore float64 `json:"lexical_score"`
	// IsTable marks chunks carrying tabular markup.
	IsTable bool `json:"is_table,omitempty"`
}

// SearchResponse represents the ranked result list for a query.
type SearchResponse struct {
	Results []Result `json:"results"`
}
