package indexer

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"corpus-ai/internal/storage"
)

const (
	// ChunkerVersion is the version identifier for the chunker implementation.
	// Update this when chunking logic changes significantly.
	ChunkerVersion = "v1.0"
	// TokensPerRune is an approximation for token counting (4 chars per token).
	TokensPerRune = 4.0
)

// CoverageStats describes the current state of the index.
type CoverageStats struct {
	// Documents is the total number of documents in the index.
	Documents int `json:"documents"`
	// DocumentsByKind breaks documents down per source kind.
	DocumentsByKind map[string]int `json:"documents_by_kind,omitempty"`
	// DocumentsWithoutChunks is the number of documents that produced 0 chunks.
	DocumentsWithoutChunks int `json:"documents_without_chunks"`
	// Chunks is the total number of indexed chunks.
	Chunks int `json:"chunks"`
	// ChunksLexicalOnly is the number of chunks without a dense vector.
	ChunksLexicalOnly int `json:"chunks_lexical_only"`
	// TableChunks is the number of chunks carrying table markup.
	TableChunks int `json:"table_chunks"`
	// ChunkTokenStats summarizes estimated token counts per chunk.
	ChunkTokenStats ChunkTokenStats `json:"chunk_token_stats"`
	// ChunkerVersion is the version of the chunker used.
	ChunkerVersion string `json:"chunker_version"`
	// IndexVersion is a hash identifying the index build (chunker + embedding model + params).
	IndexVersion string `json:"index_version"`
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// GetCoverageStats computes index coverage statistics from the database.
func (p *Pipeline) GetCoverageStats(ctx context.Context, embeddingModelName string) (*CoverageStats, error) {
	docRepo, ok := p.docRepo.(*storage.DocumentRepo)
	if !ok {
		return nil, fmt.Errorf("docRepo is not *storage.DocumentRepo, cannot query stats")
	}
	db := docRepo.DB()
	if db == nil {
		return nil, fmt.Errorf("docRepo.DB() returned nil")
	}

	stats := &CoverageStats{
		DocumentsByKind: make(map[string]int),
		ChunkerVersion:  ChunkerVersion,
	}

	rows, err := db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM documents GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan document counts: %w", err)
		}
		stats.DocumentsByKind[kind] = n
		stats.Documents += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE id NOT IN (SELECT DISTINCT document_id FROM chunks)`,
	).Scan(&stats.DocumentsWithoutChunks); err != nil {
		return nil, fmt.Errorf("failed to count documents without chunks: %w", err)
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE embedded = 0").Scan(&stats.ChunksLexicalOnly); err != nil {
		return nil, fmt.Errorf("failed to count lexical-only chunks: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE is_table = 1").Scan(&stats.TableChunks); err != nil {
		return nil, fmt.Errorf("failed to count table chunks: %w", err)
	}

	tokenCounts, err := chunkTokenCounts(ctx, db)
	if err != nil {
		return nil, err
	}
	stats.ChunkTokenStats = computeTokenStats(tokenCounts)

	indexVersionInput := fmt.Sprintf("%s|%s|target=%d|overlap=%d",
		ChunkerVersion, embeddingModelName, p.chunker.opts.TargetRunes, p.chunker.opts.OverlapRunes)
	hash := sha256.Sum256([]byte(indexVersionInput))
	stats.IndexVersion = hex.EncodeToString(hash[:])[:16]

	return stats, nil
}

// chunkTokenCounts estimates token counts for every chunk text.
func chunkTokenCounts(ctx context.Context, db *sql.DB) ([]int, error) {
	rows, err := db.QueryContext(ctx, "SELECT text FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk texts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var counts []int
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan chunk text: %w", err)
		}
		runeCount := utf8.RuneCountInString(text)
		tokenCount := int(math.Round(float64(runeCount) / TokensPerRune))
		if tokenCount < 1 {
			tokenCount = 1
		}
		counts = append(counts, tokenCount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	min := sorted[0]
	max := sorted[len(sorted)-1]

	sum := 0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := float64(sum) / float64(len(tokenCounts))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}
	p95 := sorted[p95Index]

	return ChunkTokenStats{
		Min:  min,
		Max:  max,
		Mean: math.Round(mean*100) / 100,
		P95:  p95,
	}
}
