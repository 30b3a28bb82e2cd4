package indexer

// DocumentStatus classifies the outcome of ingesting one file.
type DocumentStatus string

const (
	// StatusIndexed means the document was chunked and written to the index.
	StatusIndexed DocumentStatus = "indexed"
	// StatusSkipped means the stored content hash matched, so nothing changed.
	StatusSkipped DocumentStatus = "skipped"
	// StatusFailed means the document could not be ingested.
	StatusFailed DocumentStatus = "failed"
)

// DocumentReport is the per-file outcome of an ingest run.
type DocumentReport struct {
	Path        string         `json:"path"`
	DocumentID  string         `json:"document_id,omitempty"`
	Status      DocumentStatus `json:"status"`
	Blocks      int            `json:"blocks"`            // content blocks extracted
	Chunks      int            `json:"chunks"`            // chunks produced before dedup
	Indexed     int            `json:"indexed"`           // chunks written to the index
	Deduped     int            `json:"deduped,omitempty"` // chunks dropped as duplicates
	OCRPages    int            `json:"ocr_pages,omitempty"`
	LexicalOnly bool           `json:"lexical_only,omitempty"`
	Error       string         `json:"error,omitempty"`
}
