package indexer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"corpus-ai/internal/asr"
	"corpus-ai/internal/contextutil"
	"corpus-ai/internal/extract"
	"corpus-ai/internal/llm"
	"corpus-ai/internal/ocr"
	"corpus-ai/internal/storage"
	"corpus-ai/internal/vectorstore"
)

// DefaultIngestWorkers bounds how many documents are processed concurrently.
const DefaultIngestWorkers = 4

// chunkNamespace scopes deterministic chunk IDs. Re-ingesting unchanged
// content yields identical IDs, so index writes stay idempotent.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("corpus-ai/chunk"))

// Scanner lists ingestible files under the corpus root.
type Scanner interface {
	Scan(ctx context.Context) ([]string, error)
}

// Pipeline orchestrates ingestion: extraction, OCR escalation, transcript
// merging, boilerplate removal, chunking, dedup, embedding, and the hybrid
// index write to SQLite and Qdrant.
type Pipeline struct {
	scanner     Scanner
	docRepo     storage.DocumentStore
	chunkRepo   storage.ChunkStore
	embedder    llm.Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	chunker     *Chunker
	deduper     *Deduper
	gate        *ocr.Gate
	transcriber asr.Transcriber
	snapshots   *storage.SnapshotWriter
	workers     int
}

// PipelineOptions carries the optional capabilities and tunables of a
// pipeline. Nil capabilities disable the corresponding stage.
type PipelineOptions struct {
	Scanner     Scanner
	Gate        *ocr.Gate
	Transcriber asr.Transcriber
	Snapshots   *storage.SnapshotWriter
	Chunker     *Chunker
	Deduper     *Deduper
	Workers     int
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	docRepo storage.DocumentStore,
	chunkRepo storage.ChunkStore,
	embedder llm.Embedder,
	vectorStore vectorstore.VectorStore,
	collection string,
	opts PipelineOptions,
) *Pipeline {
	if opts.Chunker == nil {
		opts.Chunker = NewChunker(ChunkerOptions{})
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultIngestWorkers
	}
	return &Pipeline{
		scanner:     opts.Scanner,
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		chunker:     opts.Chunker,
		deduper:     opts.Deduper,
		gate:        opts.Gate,
		transcriber: opts.Transcriber,
		snapshots:   opts.Snapshots,
		workers:     opts.Workers,
	}
}

// ChunkID derives the deterministic point ID for a chunk from its document,
// locator, and canonical text.
func ChunkID(documentID, locator, text string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+"|"+locator+"|"+CanonicalForHash(text))).String()
}

// DocumentID derives the document ID from the file's content hash.
func DocumentID(contentHash string) string {
	return contentHash[:32]
}

// IngestDocument ingests a single file and reports the outcome. Failures are
// confined to the report; the error return covers context cancellation only.
func (p *Pipeline) IngestDocument(ctx context.Context, path string) (DocumentReport, error) {
	return p.IngestDocumentAs(ctx, path, "")
}

// IngestDocumentAs ingests a single file with an explicit source kind. An
// empty kind derives the kind from the file extension.
func (p *Pipeline) IngestDocumentAs(ctx context.Context, path string, kind extract.SourceKind) (DocumentReport, error) {
	logger := contextutil.LoggerFromContext(ctx)
	report := DocumentReport{Path: path, Status: StatusFailed}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if kind == "" {
		var err error
		kind, err = extract.KindFromPath(path)
		if err != nil {
			report.Error = err.Error()
			return report, nil
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		report.Error = fmt.Sprintf("read file: %v", err)
		return report, nil
	}

	sum := sha256.Sum256(content)
	contentHash := fmt.Sprintf("%x", sum)
	docID := DocumentID(contentHash)
	report.DocumentID = docID

	existing, err := p.docRepo.GetByPath(ctx, path)
	if err != nil && err != storage.ErrNotFound {
		report.Error = fmt.Sprintf("check existing document: %v", err)
		return report, nil
	}
	if existing != nil && existing.ContentHash == contentHash {
		logger.DebugContext(ctx, "skipping unchanged file", "path", path, "document_id", docID)
		report.Status = StatusSkipped
		return report, nil
	}

	blocks, ocrPages, err := p.extractBlocks(ctx, path, kind)
	if err != nil {
		report.Error = err.Error()
		return report, ctx.Err()
	}
	report.OCRPages = ocrPages
	report.Blocks = len(blocks)

	boiler := FindBoilerplateLines(blocks, BoilerplateMinFrac(kind))
	blocks = DropBoilerplate(blocks, boiler)

	chunks := p.chunker.ChunkBlocks(blocks)
	report.Chunks = len(chunks)

	replacesID := ""
	if existing != nil {
		replacesID = existing.ID
	}

	kept := make([]Chunk, 0, len(chunks))
	fingerprints := make([]string, 0, len(chunks))
	seenInDoc := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		fp := Fingerprint(chunk.Text)
		if _, ok := seenInDoc[fp]; ok {
			report.Deduped++
			continue
		}
		if p.deduper != nil && p.deduper.IsDuplicate(docID, replacesID, fp, chunk.Text) {
			report.Deduped++
			continue
		}
		seenInDoc[fp] = struct{}{}
		chunk.Ord = len(kept)
		kept = append(kept, chunk)
		fingerprints = append(fingerprints, fp)
	}

	doc := &storage.DocumentRecord{
		ID:          docID,
		SourcePath:  path,
		Kind:        string(kind),
		ByteSize:    int64(len(content)),
		ContentHash: contentHash,
		Title:       titleFromPath(path),
	}

	if err := p.writeIndex(ctx, doc, existing, kept, fingerprints, &report); err != nil {
		report.Error = err.Error()
		report.Status = StatusFailed
		return report, ctx.Err()
	}

	// Ownership moves only after the index write succeeds, so a failed
	// write never claims fingerprints for content that was not stored.
	if p.deduper != nil {
		texts := make([]string, len(kept))
		for i, chunk := range kept {
			texts[i] = chunk.Text
		}
		p.deduper.Commit(docID, fingerprints, texts)
		if existing != nil && existing.ID != docID {
			p.deduper.Retire(existing.ID)
		}
	}

	report.Status = StatusIndexed
	report.Indexed = len(kept)
	logger.InfoContext(ctx, "indexed document",
		"path", path, "document_id", docID, "kind", kind,
		"blocks", report.Blocks, "chunks", len(kept), "deduped", report.Deduped, "ocr_pages", ocrPages)
	return report, nil
}

// extractBlocks routes a file to its extractor or, for media, to the
// transcription capability, then runs the OCR gate where it applies.
func (p *Pipeline) extractBlocks(ctx context.Context, path string, kind extract.SourceKind) ([]extract.ContentBlock, int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if kind == extract.KindMedia {
		if p.transcriber == nil {
			return nil, 0, fmt.Errorf("%w: transcription not configured", asr.ErrTranscriptionFailure)
		}
		segments, err := p.transcriber.Transcribe(ctx, path)
		if err != nil {
			return nil, 0, fmt.Errorf("transcribe %s: %w", path, err)
		}
		return asr.MergeSegments(segments, asr.DefaultMergeOptions()), 0, nil
	}

	extractor, err := extract.ForKind(kind)
	if err != nil {
		return nil, 0, err
	}
	blocks, err := extractor.Extract(ctx, path)
	if err != nil {
		return nil, 0, fmt.Errorf("extract %s: %w", path, err)
	}

	ocrPages := 0
	if p.gate != nil && (kind == extract.KindPDF || kind == extract.KindSlides) {
		blocks, ocrPages, err = p.gate.Apply(ctx, path, blocks)
		if err != nil {
			// Escalation problems degrade to native text, they never
			// lose the document.
			logger.WarnContext(ctx, "ocr escalation failed, keeping native text", "path", path, "error", err)
		}
	}
	return blocks, ocrPages, nil
}

// writeIndex replaces the document's presence in both halves of the hybrid
// index. New records are committed first and stale ones removed after, so a
// failed write leaves the previously committed state untouched. Vector
// writes degrade to lexical-only; relational writes are fatal for the
// document.
func (p *Pipeline) writeIndex(
	ctx context.Context,
	doc *storage.DocumentRecord,
	existing *storage.DocumentRecord,
	chunks []Chunk,
	fingerprints []string,
	report *DocumentReport,
) error {
	logger := contextutil.LoggerFromContext(ctx)

	// Snapshot the old chunk IDs up front. The old document row can hold a
	// different ID when the file's bytes changed, and the replace below
	// erases the rows these IDs come from.
	var oldIDs []string
	if existing != nil {
		var err error
		oldIDs, err = p.chunkRepo.ListIDsByDocument(ctx, existing.ID)
		if err != nil {
			return fmt.Errorf("list old chunk IDs: %w", err)
		}
	}

	embedded := false
	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}
		var err error
		vectors, err = p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WarnContext(ctx, "embedding failed, indexing lexical-only", "path", doc.SourcePath, "error", err)
		} else if len(vectors) != len(chunks) {
			logger.WarnContext(ctx, "embedding count mismatch, indexing lexical-only", "expected", len(chunks), "got", len(vectors))
			vectors = nil
		} else {
			embedded = true
		}
	}

	records := make([]storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Point, 0, len(chunks))
	for i, chunk := range chunks {
		id := ChunkID(doc.ID, chunk.Locator.String(), chunk.Text)
		records[i] = storage.ChunkRecord{
			ID:          id,
			DocumentID:  doc.ID,
			Ord:         chunk.Ord,
			Locator:     chunk.Locator.String(),
			Section:     chunk.Section,
			Text:        chunk.Text,
			Fingerprint: fingerprints[i],
			IsTable:     chunk.IsTable,
			Embedded:    embedded,
		}
		if embedded {
			points = append(points, vectorstore.Point{
				ID:  id,
				Vec: vectors[i],
				Meta: map[string]any{
					"document_id": doc.ID,
					"kind":        doc.Kind,
					"source_path": doc.SourcePath,
					"title":       doc.Title,
					"locator":     chunk.Locator.String(),
					"section":     chunk.Section,
					"ord":         chunk.Ord,
				},
			})
		}
	}

	if embedded && len(points) > 0 {
		if err := p.vectorStore.Upsert(ctx, p.collection, points); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WarnContext(ctx, "vector upsert failed, indexing lexical-only", "path", doc.SourcePath, "error", err)
			embedded = false
			for i := range records {
				records[i].Embedded = false
			}
		}
	}
	report.LexicalOnly = !embedded && len(chunks) > 0

	if err := p.docRepo.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	if err := p.chunkRepo.ReplaceDocumentChunks(ctx, doc.ID, records); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}

	// The new set is committed; now clear what it superseded. Chunk IDs are
	// content-addressed, so IDs reused by the new set must survive.
	if existing != nil {
		newIDs := make(map[string]struct{}, len(records))
		for _, rec := range records {
			newIDs[rec.ID] = struct{}{}
		}
		stale := make([]string, 0, len(oldIDs))
		for _, id := range oldIDs {
			if _, ok := newIDs[id]; !ok {
				stale = append(stale, id)
			}
		}
		if len(stale) > 0 {
			if err := p.vectorStore.Delete(ctx, p.collection, stale); err != nil {
				logger.WarnContext(ctx, "failed to delete stale vectors", "document_id", existing.ID, "count", len(stale), "error", err)
			}
		}
		if existing.ID != doc.ID {
			if err := p.chunkRepo.DeleteByDocument(ctx, existing.ID); err != nil {
				logger.WarnContext(ctx, "failed to delete old chunk rows", "document_id", existing.ID, "error", err)
			}
			if err := p.snapshots.Remove(existing.ID); err != nil {
				logger.WarnContext(ctx, "failed to remove stale snapshot", "document_id", existing.ID, "error", err)
			}
		}
	}

	if err := p.snapshots.Write(doc, records); err != nil {
		logger.WarnContext(ctx, "failed to write snapshot", "document_id", doc.ID, "error", err)
	}
	return nil
}

// IngestPaths ingests the given files with bounded concurrency. The returned
// reports follow the input order. One failing document never aborts the
// batch; only context cancellation does.
func (p *Pipeline) IngestPaths(ctx context.Context, paths []string) ([]DocumentReport, error) {
	return p.IngestPathsWithKinds(ctx, paths, nil)
}

// IngestPathsWithKinds is IngestPaths with optional per-path source-kind
// overrides for files whose extension does not identify them.
func (p *Pipeline) IngestPathsWithKinds(ctx context.Context, paths []string, kinds map[string]extract.SourceKind) ([]DocumentReport, error) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "starting ingest", "total_files", len(paths), "workers", p.workers)

	reports := make([]DocumentReport, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, path := range paths {
		g.Go(func() error {
			report, err := p.IngestDocumentAs(gctx, path, kinds[path])
			mu.Lock()
			reports[i] = report
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}

	var indexed, skipped, failed int
	for _, r := range reports {
		switch r.Status {
		case StatusIndexed:
			indexed++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	logger.InfoContext(ctx, "ingest completed", "indexed", indexed, "skipped", skipped, "failed", failed)
	return reports, nil
}

// IngestAll scans the corpus directory and ingests every supported file.
func (p *Pipeline) IngestAll(ctx context.Context) ([]DocumentReport, error) {
	if p.scanner == nil {
		return nil, fmt.Errorf("no corpus scanner configured")
	}
	paths, err := p.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}
	return p.IngestPaths(ctx, paths)
}

// titleFromPath derives a display title from the file stem.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
