package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks corpus-ai/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// GetByID gets a document by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)
	// GetByPath gets a document by its source path. Returns ErrNotFound if not found.
	GetByPath(ctx context.Context, sourcePath string) (*DocumentRecord, error)
	// Upsert inserts a new document or updates the existing row for the same
	// source path.
	Upsert(ctx context.Context, doc *DocumentRecord) error
	// Delete removes a document row. Chunks cascade.
	Delete(ctx context.Context, id string) error
	// List returns all documents ordered by source path.
	List(ctx context.Context) ([]DocumentRecord, error)
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// DB exposes the underlying database for coverage statistics queries.
func (r *DocumentRepo) DB() *sql.DB {
	return r.db
}

// GetByID gets a document by its ID. Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*DocumentRecord, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT id, source_path, kind, byte_size, content_hash, title, ingested_at FROM documents WHERE id = ?",
		id,
	))
}

// GetByPath gets a document by its source path. Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByPath(ctx context.Context, sourcePath string) (*DocumentRecord, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT id, source_path, kind, byte_size, content_hash, title, ingested_at FROM documents WHERE source_path = ?",
		sourcePath,
	))
}

// Upsert inserts a new document or updates the existing row for the same
// source path. A re-ingested file whose bytes changed gets a new ID, so the
// old row for the path is replaced rather than duplicated.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *DocumentRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// The ID changes when the content changes; clear any previous row for
	// the same path first so the path stays unique.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE source_path = ? AND id != ?",
		doc.SourcePath, doc.ID,
	); err != nil {
		return fmt.Errorf("failed to clear stale document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, source_path, kind, byte_size, content_hash, title, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET
		 source_path = excluded.source_path, kind = excluded.kind,
		 byte_size = excluded.byte_size, content_hash = excluded.content_hash,
		 title = excluded.title, ingested_at = CURRENT_TIMESTAMP`,
		doc.ID, doc.SourcePath, doc.Kind, doc.ByteSize, doc.ContentHash, doc.Title,
	); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document upsert: %w", err)
	}
	return nil
}

// Delete removes a document row. Chunks cascade.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// List returns all documents ordered by source path.
func (r *DocumentRepo) List(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, source_path, kind, byte_size, content_hash, title, ingested_at FROM documents ORDER BY source_path",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []DocumentRecord
	for rows.Next() {
		var doc DocumentRecord
		var ingestedAtStr string
		if err := rows.Scan(&doc.ID, &doc.SourcePath, &doc.Kind, &doc.ByteSize, &doc.ContentHash, &doc.Title, &ingestedAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.IngestedAt, err = parseTimestamp(ingestedAtStr)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepo) scanOne(row *sql.Row) (*DocumentRecord, error) {
	var doc DocumentRecord
	var ingestedAtStr string

	err := row.Scan(&doc.ID, &doc.SourcePath, &doc.Kind, &doc.ByteSize, &doc.ContentHash, &doc.Title, &ingestedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	doc.IngestedAt, err = parseTimestamp(ingestedAtStr)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err == nil {
		return t, nil
	}
	// SQLite might use a different format
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return t, nil
}
