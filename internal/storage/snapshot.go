package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotWriter persists a per-document JSON copy of indexed chunks, so an
// index rebuild or offline inspection does not need the database.
type SnapshotWriter struct {
	dir string
}

// NewSnapshotWriter creates a snapshot writer rooted at dir. An empty dir
// disables snapshots.
func NewSnapshotWriter(dir string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir}
}

type snapshotChunk struct {
	ID          string `json:"id"`
	Ord         int    `json:"ord"`
	Locator     string `json:"locator"`
	Section     string `json:"section,omitempty"`
	Text        string `json:"text"`
	Fingerprint string `json:"fingerprint"`
	IsTable     bool   `json:"is_table,omitempty"`
	Embedded    bool   `json:"embedded"`
}

type snapshotFile struct {
	DocumentID string          `json:"document_id"`
	SourcePath string          `json:"source_path"`
	Title      string          `json:"title"`
	Kind       string          `json:"kind"`
	Chunks     []snapshotChunk `json:"chunks"`
}

// Write saves the chunk set for one document as <document_id>.json under the
// snapshot directory. The file is written to a temp name and renamed, so a
// crash never leaves a truncated snapshot.
func (w *SnapshotWriter) Write(doc *DocumentRecord, chunks []ChunkRecord) error {
	if w == nil || w.dir == "" {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	out := snapshotFile{
		DocumentID: doc.ID,
		SourcePath: doc.SourcePath,
		Title:      doc.Title,
		Kind:       doc.Kind,
		Chunks:     make([]snapshotChunk, 0, len(chunks)),
	}
	for _, c := range chunks {
		out.Chunks = append(out.Chunks, snapshotChunk{
			ID:          c.ID,
			Ord:         c.Ord,
			Locator:     c.Locator,
			Section:     c.Section,
			Text:        c.Text,
			Fingerprint: c.Fingerprint,
			IsTable:     c.IsTable,
			Embedded:    c.Embedded,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	final := filepath.Join(w.dir, doc.ID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return nil
}

// Remove deletes the snapshot for a document, if present.
func (w *SnapshotWriter) Remove(documentID string) error {
	if w == nil || w.dir == "" {
		return nil
	}
	err := os.Remove(filepath.Join(w.dir, documentID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}
