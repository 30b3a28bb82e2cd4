package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks corpus-ai/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

// ChunkStore defines the interface for chunk storage operations, including
// the full-text side of the hybrid index.
type ChunkStore interface {
	// ReplaceDocumentChunks atomically replaces all chunks of a document,
	// keeping the full-text index in step.
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []ChunkRecord) error
	// DeleteByDocument deletes all chunks for a given document ID.
	DeleteByDocument(ctx context.Context, documentID string) error
	// ListIDsByDocument returns all chunk IDs for a given document, ordered by ord.
	ListIDsByDocument(ctx context.Context, documentID string) ([]string, error)
	// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*ChunkRecord, error)
	// GetByIDs gets chunks by ID. Missing IDs are silently dropped.
	GetByIDs(ctx context.Context, ids []string) ([]ChunkRecord, error)
	// ListFingerprints returns every stored chunk fingerprint with its
	// owning document id.
	ListFingerprints(ctx context.Context) ([]FingerprintOwner, error)
	// SearchLexical runs a bm25-ranked full-text search over chunk text.
	SearchLexical(ctx context.Context, query string, limit int, filter LexicalFilter) ([]LexicalHit, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// DB exposes the underlying database for coverage statistics queries.
func (r *ChunkRepo) DB() *sql.DB {
	return r.db
}

// ReplaceDocumentChunks atomically replaces all chunks of a document. The
// chunks and chunks_fts tables move together in one transaction, so a reader
// never sees a chunk without its full-text row or vice versa.
func (r *ChunkRepo) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []ChunkRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks_fts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)",
		documentID,
	); err != nil {
		return fmt.Errorf("failed to clear full-text rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, ord, locator, section, text, fingerprint, is_table, embedded)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID, chunk.DocumentID, chunk.Ord, chunk.Locator, chunk.Section,
			chunk.Text, chunk.Fingerprint, chunk.IsTable, chunk.Embedded,
		); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chunks_fts (chunk_id, text) VALUES (?, ?)",
			chunk.ID, chunk.Text,
		); err != nil {
			return fmt.Errorf("failed to insert full-text row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replace: %w", err)
	}
	return nil
}

// DeleteByDocument deletes all chunks for a given document ID, including
// their full-text rows.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks_fts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)",
		documentID,
	); err != nil {
		return fmt.Errorf("failed to delete full-text rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk delete: %w", err)
	}
	return nil
}

// ListIDsByDocument returns all chunk IDs for a given document, ordered by ord.
// Returns an empty slice if no chunks exist (not an error).
// Used to get Qdrant point IDs for deletion before re-indexing.
func (r *ChunkRepo) ListIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE document_id = ? ORDER BY ord",
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	var chunk ChunkRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT id, document_id, ord, locator, section, text, fingerprint, is_table, embedded FROM chunks WHERE id = ?",
		id,
	).Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ord, &chunk.Locator, &chunk.Section,
		&chunk.Text, &chunk.Fingerprint, &chunk.IsTable, &chunk.Embedded)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}

	return &chunk, nil
}

// GetByIDs gets chunks by ID. Missing IDs are silently dropped; the result
// order follows the input order.
func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) ([]ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, document_id, ord, locator, section, text, fingerprint, is_table, embedded FROM chunks WHERE id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	byID := make(map[string]ChunkRecord, len(ids))
	for rows.Next() {
		var chunk ChunkRecord
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ord, &chunk.Locator, &chunk.Section,
			&chunk.Text, &chunk.Fingerprint, &chunk.IsTable, &chunk.Embedded); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	out := make([]ChunkRecord, 0, len(byID))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

// ListFingerprints returns every stored chunk fingerprint with its owning
// document id. Used to seed the deduplicator at startup.
func (r *ChunkRepo) ListFingerprints(ctx context.Context) ([]FingerprintOwner, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT fingerprint, document_id FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var fps []FingerprintOwner
	for rows.Next() {
		var fp FingerprintOwner
		if err := rows.Scan(&fp.Fingerprint, &fp.DocumentID); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fps = append(fps, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return fps, nil
}

// SearchLexical runs a bm25-ranked full-text search over chunk text. The raw
// query is reduced to its alphanumeric tokens joined with OR, so user
// punctuation can never break the match syntax. bm25() reports lower values
// for better matches; scores are negated so higher is better.
func (r *ChunkRepo) SearchLexical(ctx context.Context, query string, limit int, filter LexicalFilter) ([]LexicalHit, error) {
	matchQuery := buildMatchQuery(query)
	if matchQuery == "" {
		return nil, nil
	}

	sqlQuery := `SELECT f.chunk_id, -bm25(chunks_fts) AS score
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ?`
	args := []any{matchQuery}

	if filter.DocumentID != "" {
		sqlQuery += " AND c.document_id = ?"
		args = append(args, filter.DocumentID)
	}
	if filter.Kind != "" {
		sqlQuery += " AND d.kind = ?"
		args = append(args, filter.Kind)
	}
	sqlQuery += " ORDER BY score DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run full-text search: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var hits []LexicalHit
	for rows.Next() {
		var hit LexicalHit
		if err := rows.Scan(&hit.ChunkID, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan lexical hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return hits, nil
}

// buildMatchQuery tokenizes free text into an FTS5 MATCH expression.
func buildMatchQuery(query string) string {
	tokens := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " OR ")
}
