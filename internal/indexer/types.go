package indexer

import "corpus-ai/internal/extract"

// Chunk is one retrieval unit produced from a document.
type Chunk struct {
	Ord     int             // Position within the document (starts at 0)
	Locator extract.Locator // Where in the source the chunk came from
	Section string          // Heading path for structured formats, empty otherwise
	Text    string
	IsTable bool // Chunk carries table markup
}
