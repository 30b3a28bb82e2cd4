package storage

import "time"

// DocumentRecord represents one ingested source file in the database.
type DocumentRecord struct {
	ID          string // sha256 of source bytes, truncated to 32 hex chars
	SourcePath  string // Absolute path of the source file
	Kind        string // Source kind: pdf, slides, docx, markdown, text, media
	ByteSize    int64
	ContentHash string // Full sha256 hex of the source bytes
	Title       string // File stem, used as a display title
	IngestedAt  time.Time
}

// ChunkRecord represents an indexed chunk of a document.
type ChunkRecord struct {
	ID          string // Deterministic UUID (same as Qdrant point ID)
	DocumentID  string // Foreign key to documents.id
	Ord         int    // Position within the document (starts at 0)
	Locator     string // Source position: "page:3", "slide:7", "time:00:01:30-00:02:10", ...
	Section     string // Heading path for structured formats, empty otherwise
	Text        string
	Fingerprint string // sha1 hex of the canonicalized text, used for dedup
	IsTable     bool   // Chunk carries table markup
	Embedded    bool   // False when the dense vector write was skipped or failed
}

// FingerprintOwner pairs a chunk fingerprint with the document that owns it.
type FingerprintOwner struct {
	Fingerprint string
	DocumentID  string
}

// LexicalHit is one full-text match from the lexical index.
type LexicalHit struct {
	ChunkID string
	Score   float64 // Higher is better (negated bm25)
}

// LexicalFilter restricts lexical search to a document or a source kind.
// Zero values mean no restriction.
type LexicalFilter struct {
	DocumentID string
	Kind       string
}
