// Package rag implements hybrid retrieval over the chunk index: dense
// vector search and lexical full-text search run in parallel and their
// results are fused client-side into one ranking.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"corpus-ai/internal/contextutil"
	"corpus-ai/internal/llm"
	"corpus-ai/internal/storage"
	"corpus-ai/internal/vectorstore"
)

const (
	// DefaultTopK is the number of results returned when the request does
	// not specify one.
	DefaultTopK = 5
	// MaxTopK caps the result count a single request may ask for.
	MaxTopK = 20
	// candidateMultiplier oversamples each branch relative to TopK so the
	// fused ranking has enough candidates to reorder.
	candidateMultiplier = 4
	// maxCandidates bounds the per-branch candidate fetch.
	maxCandidates = 100
	// maxPerDocument limits how many chunks from one document may appear
	// in the final results.
	maxPerDocument = 2
)

// Engine defines the retrieval interface.
type Engine interface {
	// Search runs a hybrid query and returns the fused, ranked results.
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// HybridEngine retrieves chunks from both halves of the index and fuses
// the rankings. It implements the Engine interface.
type HybridEngine struct {
	embedder    llm.Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	chunkRepo   storage.ChunkStore
	docRepo     storage.DocumentStore
	alpha       float64
}

// NewHybridEngine creates a new HybridEngine. An alpha outside (0, 1)
// falls back to DefaultFusionAlpha.
func NewHybridEngine(
	embedder llm.Embedder,
	vectorStore vectorstore.VectorStore,
	collection string,
	chunkRepo storage.ChunkStore,
	docRepo storage.DocumentStore,
	alpha float64,
) *HybridEngine {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultFusionAlpha
	}
	return &HybridEngine{
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		chunkRepo:   chunkRepo,
		docRepo:     docRepo,
		alpha:       alpha,
	}
}

// Search embeds the query, fans out to the dense and lexical branches,
// fuses the two rankings, and hydrates the top results. If one branch
// fails the other still serves the query; if both fail it returns
// ErrIndexUnavailable.
func (e *HybridEngine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	k := req.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	if k > MaxTopK {
		k = MaxTopK
	}
	candidates := k * candidateMultiplier
	if candidates > maxCandidates {
		candidates = maxCandidates
	}

	var (
		dense    []scoredID
		denseErr error
		lexical  []scoredID
		lexErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dense, denseErr = e.searchDense(gctx, query, candidates, req.Filters)
		if denseErr != nil && gctx.Err() != nil {
			return gctx.Err()
		}
		return nil
	})
	g.Go(func() error {
		lexical, lexErr = e.searchLexical(gctx, query, candidates, req.Filters)
		if lexErr != nil && gctx.Err() != nil {
			return gctx.Err()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if denseErr != nil && lexErr != nil {
		logger.ErrorContext(ctx, "both retrieval branches failed",
			"dense_error", denseErr, "lexical_error", lexErr)
		return nil, fmt.Errorf("%w: dense: %v; lexical: %v", ErrIndexUnavailable, denseErr, lexErr)
	}
	if denseErr != nil {
		logger.WarnContext(ctx, "dense search failed, serving lexical results only", "error", denseErr)
	}
	if lexErr != nil {
		logger.WarnContext(ctx, "lexical search failed, serving dense results only", "error", lexErr)
	}

	fused := fuseCandidates(dense, lexical, e.alpha)
	results, err := e.hydrate(ctx, fused, k)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "hybrid search completed",
		"query_len", len(query),
		"dense_candidates", len(dense),
		"lexical_candidates", len(lexical),
		"results", len(results))

	return &SearchResponse{Results: results}, nil
}

// searchDense embeds the query and runs the vector search.
func (e *HybridEngine) searchDense(ctx context.Context, query string, limit int, filters SearchFilters) ([]scoredID, error) {
	vecs, err := e.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vecs))
	}

	filterMap := map[string]any{}
	if filters.DocumentID != "" {
		filterMap["document_id"] = filters.DocumentID
	}
	if filters.Kind != "" {
		filterMap["kind"] = filters.Kind
	}

	hits, err := e.vectorStore.Search(ctx, e.collection, vecs[0], limit, filterMap)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]scoredID, 0, len(hits))
	for _, h := range hits {
		out = append(out, scoredID{ID: h.PointID, Score: float64(h.Score)})
	}
	return out, nil
}

// searchLexical runs the bm25 full-text search.
func (e *HybridEngine) searchLexical(ctx context.Context, query string, limit int, filters SearchFilters) ([]scoredID, error) {
	hits, err := e.chunkRepo.SearchLexical(ctx, query, limit, storage.LexicalFilter{
		DocumentID: filters.DocumentID,
		Kind:       filters.Kind,
	})
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	out := make([]scoredID, 0, len(hits))
	for _, h := range hits {
		out = append(out, scoredID{ID: h.ChunkID, Score: h.Score})
	}
	return out, nil
}

// hydrate loads chunk and document rows for the fused candidates, applies
// the per-document diversity cap, and returns the top k results in fused
// order. Candidates whose chunk row has vanished are skipped.
func (e *HybridEngine) hydrate(ctx context.Context, fused []fusedCandidate, k int) ([]Result, error) {
	if len(fused) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, 0, len(fused))
	for _, c := range fused {
		ids = append(ids, c.ID)
	}
	records, err := e.chunkRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	byID := make(map[string]storage.ChunkRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	docs := make(map[string]*storage.DocumentRecord)
	perDoc := make(map[string]int)
	results := make([]Result, 0, k)
	for _, c := range fused {
		if len(results) >= k {
			break
		}
		rec, ok := byID[c.ID]
		if !ok {
			continue
		}
		if perDoc[rec.DocumentID] >= maxPerDocument {
			continue
		}

		doc, ok := docs[rec.DocumentID]
		if !ok {
			doc, err = e.docRepo.GetByID(ctx, rec.DocumentID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, fmt.Errorf("loading document %s: %w", rec.DocumentID, err)
			}
			docs[rec.DocumentID] = doc
		}

		perDoc[rec.DocumentID]++
		results = append(results, Result{
			ChunkID:      rec.ID,
			DocumentID:   rec.DocumentID,
			Title:        doc.Title,
			SourcePath:   doc.SourcePath,
			Locator:      rec.Locator,
			Section:      rec.Section,
			Text:         rec.Text,
			Score:        c.Fused,
			DenseScore:   c.Dense,
			LexicalScore: c.Lexical,
			IsTable:      rec.IsTable,
		})
	}
	return results, nil
}
