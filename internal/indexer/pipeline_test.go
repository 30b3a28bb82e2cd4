package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/mock/gomock"

	"corpus-ai/internal/extract"
	llm_mocks "corpus-ai/internal/llm/mocks"
	"corpus-ai/internal/storage"
	storage_mocks "corpus-ai/internal/storage/mocks"
	vectorstore_mocks "corpus-ai/internal/vectorstore/mocks"
)

const testCollection = "corpus_chunks"

type pipelineMocks struct {
	docRepo   *storage_mocks.MockDocumentStore
	chunkRepo *storage_mocks.MockChunkStore
	embedder  *llm_mocks.MockEmbedder
	vecStore  *vectorstore_mocks.MockVectorStore
}

func newPipelineMocks(t *testing.T) (*gomock.Controller, pipelineMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	return ctrl, pipelineMocks{
		docRepo:   storage_mocks.NewMockDocumentStore(ctrl),
		chunkRepo: storage_mocks.NewMockChunkStore(ctrl),
		embedder:  llm_mocks.NewMockEmbedder(ctrl),
		vecStore:  vectorstore_mocks.NewMockVectorStore(ctrl),
	}
}

func (m pipelineMocks) pipeline(opts PipelineOptions) *Pipeline {
	return NewPipeline(m.docRepo, m.chunkRepo, m.embedder, m.vecStore, testCollection, opts)
}

// embedEcho returns one small vector per input text.
func embedEcho(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.1, 0.2, 0.3}
	}
	return vecs, nil
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

const testDocText = "The ingestion pipeline reads documents from the corpus directory. " +
	"Each document is split into retrieval sized chunks along sentence boundaries. " +
	"Chunks are embedded and written to both halves of the hybrid index."

func TestPipeline_IngestDocument_IndexesTextFile(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	path := writeTestFile(t, "pipeline.txt", testDocText)

	m.docRepo.EXPECT().GetByPath(gomock.Any(), path).Return(nil, storage.ErrNotFound)
	m.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).DoAndReturn(embedEcho)
	m.vecStore.EXPECT().Upsert(gomock.Any(), testCollection, gomock.Any()).Return(nil)
	m.docRepo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	var stored []storage.ChunkRecord
	m.chunkRepo.EXPECT().ReplaceDocumentChunks(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, chunks []storage.ChunkRecord) error {
			stored = chunks
			return nil
		})

	p := m.pipeline(PipelineOptions{})
	report, err := p.IngestDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestDocument() error = %v", err)
	}

	if report.Status != StatusIndexed {
		t.Fatalf("report.Status = %v, want indexed (error: %s)", report.Status, report.Error)
	}
	if report.Indexed == 0 || len(stored) != report.Indexed {
		t.Fatalf("report.Indexed = %d, stored %d", report.Indexed, len(stored))
	}
	if report.Blocks == 0 {
		t.Error("report.Blocks should count the extracted blocks")
	}
	if report.Chunks != report.Indexed {
		t.Errorf("report.Chunks = %d, want %d with no dedup", report.Chunks, report.Indexed)
	}
	for i, rec := range stored {
		if !rec.Embedded {
			t.Errorf("chunk %d not marked embedded", i)
		}
		if rec.Fingerprint == "" {
			t.Errorf("chunk %d missing fingerprint", i)
		}
		if rec.ID != ChunkID(report.DocumentID, rec.Locator, rec.Text) {
			t.Errorf("chunk %d ID is not deterministic", i)
		}
	}
}

func TestPipeline_IngestDocument_SkipsUnchanged(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	path := writeTestFile(t, "unchanged.txt", testDocText)
	sum := sha256.Sum256([]byte(testDocText))
	contentHash := fmt.Sprintf("%x", sum)

	m.docRepo.EXPECT().GetByPath(gomock.Any(), path).Return(&storage.DocumentRecord{
		ID:          DocumentID(contentHash),
		SourcePath:  path,
		ContentHash: contentHash,
	}, nil)

	p := m.pipeline(PipelineOptions{})
	report, err := p.IngestDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestDocument() error = %v", err)
	}
	if report.Status != StatusSkipped {
		t.Errorf("report.Status = %v, want skipped", report.Status)
	}
}

func TestPipeline_IngestDocument_LexicalOnlyOnEmbedFailure(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	path := writeTestFile(t, "degraded.txt", testDocText)

	m.docRepo.EXPECT().GetByPath(gomock.Any(), path).Return(nil, storage.ErrNotFound)
	m.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).Return(nil, errors.New("embedding service down"))
	m.docRepo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	var stored []storage.ChunkRecord
	m.chunkRepo.EXPECT().ReplaceDocumentChunks(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, chunks []storage.ChunkRecord) error {
			stored = chunks
			return nil
		})
	// No vector upsert when embedding fails

	p := m.pipeline(PipelineOptions{})
	report, err := p.IngestDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestDocument() error = %v", err)
	}

	if report.Status != StatusIndexed {
		t.Fatalf("report.Status = %v, want indexed (error: %s)", report.Status, report.Error)
	}
	if !report.LexicalOnly {
		t.Error("report.LexicalOnly should be true when embedding fails")
	}
	for i, rec := range stored {
		if rec.Embedded {
			t.Errorf("chunk %d marked embedded despite failure", i)
		}
	}
}

func TestPipeline_IngestDocument_ReplacesStaleVectors(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	path := writeTestFile(t, "changed.txt", testDocText)
	oldIDs := []string{"old-1", "old-2"}

	existing := &storage.DocumentRecord{
		ID:          "old-doc-id-0000000000000000000000",
		SourcePath:  path,
		ContentHash: "different-hash",
	}
	m.docRepo.EXPECT().GetByPath(gomock.Any(), path).Return(existing, nil)
	m.chunkRepo.EXPECT().ListIDsByDocument(gomock.Any(), existing.ID).Return(oldIDs, nil)
	m.vecStore.EXPECT().Delete(gomock.Any(), testCollection, oldIDs).Return(nil)
	m.chunkRepo.EXPECT().DeleteByDocument(gomock.Any(), existing.ID).Return(nil)
	m.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).DoAndReturn(embedEcho)
	m.vecStore.EXPECT().Upsert(gomock.Any(), testCollection, gomock.Any()).Return(nil)
	m.docRepo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	m.chunkRepo.EXPECT().ReplaceDocumentChunks(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	p := m.pipeline(PipelineOptions{})
	report, err := p.IngestDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestDocument() error = %v", err)
	}
	if report.Status != StatusIndexed {
		t.Errorf("report.Status = %v, want indexed (error: %s)", report.Status, report.Error)
	}
}

func TestPipeline_IngestDocument_UnsupportedFormat(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	path := writeTestFile(t, "image.xyz", "binary-ish")

	p := m.pipeline(PipelineOptions{})
	report, err := p.IngestDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestDocument() error = %v", err)
	}
	if report.Status != StatusFailed {
		t.Errorf("report.Status = %v, want failed", report.Status)
	}
	if report.Error == "" {
		t.Error("report.Error should name the unsupported format")
	}
}

func TestPipeline_IngestDocumentAs_KindOverride(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	// .log has no extension mapping; the explicit kind carries it through.
	path := writeTestFile(t, "server.log", testDocText)

	m.docRepo.EXPECT().GetByPath(gomock.Any(), path).Return(nil, storage.ErrNotFound)
	m.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).DoAndReturn(embedEcho)
	m.vecStore.EXPECT().Upsert(gomock.Any(), testCollection, gomock.Any()).Return(nil)
	m.docRepo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	m.chunkRepo.EXPECT().ReplaceDocumentChunks(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	p := m.pipeline(PipelineOptions{})
	report, err := p.IngestDocumentAs(context.Background(), path, extract.KindText)
	if err != nil {
		t.Fatalf("IngestDocumentAs() error = %v", err)
	}
	if report.Status != StatusIndexed {
		t.Errorf("report.Status = %v, want indexed (error: %s)", report.Status, report.Error)
	}
}

func TestPipeline_IngestPaths_PartialFailure(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	good1 := writeTestFile(t, "one.txt", testDocText)
	bad := writeTestFile(t, "two.xyz", "unsupported")
	good2 := writeTestFile(t, "three.txt", testDocText+" With an extra closing sentence for variety.")

	m.docRepo.EXPECT().GetByPath(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound).AnyTimes()
	m.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).DoAndReturn(embedEcho).AnyTimes()
	m.vecStore.EXPECT().Upsert(gomock.Any(), testCollection, gomock.Any()).Return(nil).AnyTimes()
	m.docRepo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.chunkRepo.EXPECT().ReplaceDocumentChunks(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	p := m.pipeline(PipelineOptions{Workers: 2})
	reports, err := p.IngestPaths(context.Background(), []string{good1, bad, good2})
	if err != nil {
		t.Fatalf("IngestPaths() error = %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("IngestPaths() returned %d reports, want 3", len(reports))
	}

	if reports[0].Status != StatusIndexed {
		t.Errorf("reports[0].Status = %v, want indexed (error: %s)", reports[0].Status, reports[0].Error)
	}
	if reports[1].Status != StatusFailed {
		t.Errorf("reports[1].Status = %v, want failed", reports[1].Status)
	}
	if reports[2].Status != StatusIndexed {
		t.Errorf("reports[2].Status = %v, want indexed (error: %s)", reports[2].Status, reports[2].Error)
	}
}

func TestPipeline_IngestDocument_DuplicatePathKeepsIndexedChunks(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	// Byte-identical files derive the same document id. The second path
	// must re-index the same chunk set, never replace it with nothing.
	first := writeTestFile(t, "first.txt", testDocText)
	second := writeTestFile(t, "second.txt", testDocText)

	m.docRepo.EXPECT().GetByPath(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound).Times(2)
	m.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).DoAndReturn(embedEcho).Times(2)
	m.vecStore.EXPECT().Upsert(gomock.Any(), testCollection, gomock.Any()).Return(nil).Times(2)
	m.docRepo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	var replaced [][]storage.ChunkRecord
	m.chunkRepo.EXPECT().ReplaceDocumentChunks(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, chunks []storage.ChunkRecord) error {
			replaced = append(replaced, chunks)
			return nil
		}).Times(2)

	deduper := NewDeduper(DeduperOptions{}, nil)
	defer deduper.Close()
	p := m.pipeline(PipelineOptions{Deduper: deduper})

	reportA, err := p.IngestDocument(context.Background(), first)
	if err != nil {
		t.Fatalf("IngestDocument(first) error = %v", err)
	}
	reportB, err := p.IngestDocument(context.Background(), second)
	if err != nil {
		t.Fatalf("IngestDocument(second) error = %v", err)
	}

	if reportB.DocumentID != reportA.DocumentID {
		t.Fatalf("document ids differ: %s vs %s", reportA.DocumentID, reportB.DocumentID)
	}
	if reportA.Indexed == 0 || reportB.Indexed != reportA.Indexed {
		t.Errorf("indexed counts = %d then %d, want both equal and non-zero", reportA.Indexed, reportB.Indexed)
	}
	if len(replaced) != 2 || len(replaced[1]) != len(replaced[0]) || len(replaced[1]) == 0 {
		t.Fatalf("chunk replacements = %d then %d rows, second ingest must not wipe the first",
			len(replaced[0]), len(replaced[1]))
	}
	for i := range replaced[0] {
		if replaced[0][i].ID != replaced[1][i].ID {
			t.Errorf("chunk %d: id changed across identical ingests", i)
		}
	}
}

func TestPipeline_IngestDocument_DedupsSharedParagraphAcrossDocuments(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	extra := "A completely different closing paragraph describes the retrieval query path in detail."
	first := writeTestFile(t, "first.txt", testDocText)
	second := writeTestFile(t, "second.txt", testDocText+"\n\n"+extra)

	m.docRepo.EXPECT().GetByPath(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound).Times(2)
	m.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).DoAndReturn(embedEcho).AnyTimes()
	m.vecStore.EXPECT().Upsert(gomock.Any(), testCollection, gomock.Any()).Return(nil).AnyTimes()
	m.docRepo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	m.chunkRepo.EXPECT().ReplaceDocumentChunks(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	deduper := NewDeduper(DeduperOptions{}, nil)
	defer deduper.Close()
	p := m.pipeline(PipelineOptions{Deduper: deduper})

	reportA, err := p.IngestDocument(context.Background(), first)
	if err != nil {
		t.Fatalf("IngestDocument(first) error = %v", err)
	}
	if reportA.Indexed == 0 {
		t.Fatalf("first document produced no chunks (error: %s)", reportA.Error)
	}

	reportB, err := p.IngestDocument(context.Background(), second)
	if err != nil {
		t.Fatalf("IngestDocument(second) error = %v", err)
	}
	if reportB.Deduped != reportA.Indexed {
		t.Errorf("second document deduped %d chunks, want %d (the shared paragraph)", reportB.Deduped, reportA.Indexed)
	}
	if reportB.Indexed != 1 {
		t.Errorf("second document indexed %d chunks, want 1 (its own paragraph)", reportB.Indexed)
	}
}

func TestPipeline_IngestDocument_ModifiedFileKeepsUnchangedChunks(t *testing.T) {
	ctrl, m := newPipelineMocks(t)
	defer ctrl.Finish()

	extra := "A freshly added paragraph extends the document with new material about ranking."
	path := writeTestFile(t, "doc.txt", testDocText+"\n\n"+extra)

	// The prior revision of the same file owns the unchanged paragraph's
	// fingerprint under its old content-hash id.
	oldID := "11111111111111111111111111111111"
	existing := &storage.DocumentRecord{
		ID:          oldID,
		SourcePath:  path,
		ContentHash: "stale-hash",
	}
	deduper := NewDeduper(DeduperOptions{}, []storage.FingerprintOwner{
		{Fingerprint: Fingerprint(testDocText), DocumentID: oldID},
	})
	defer deduper.Close()

	m.docRepo.EXPECT().GetByPath(gomock.Any(), path).Return(existing, nil)
	m.chunkRepo.EXPECT().ListIDsByDocument(gomock.Any(), oldID).Return([]string{"old-1", "old-2"}, nil)
	m.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).DoAndReturn(embedEcho)
	m.vecStore.EXPECT().Upsert(gomock.Any(), testCollection, gomock.Any()).Return(nil)
	m.docRepo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	// New rows commit first; only then is the old revision cleared.
	replace := m.chunkRepo.EXPECT().ReplaceDocumentChunks(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	m.vecStore.EXPECT().Delete(gomock.Any(), testCollection, []string{"old-1", "old-2"}).Return(nil).After(replace)
	m.chunkRepo.EXPECT().DeleteByDocument(gomock.Any(), oldID).Return(nil).After(replace)

	p := m.pipeline(PipelineOptions{Deduper: deduper})
	report, err := p.IngestDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestDocument() error = %v", err)
	}
	if report.Status != StatusIndexed {
		t.Fatalf("report.Status = %v, want indexed (error: %s)", report.Status, report.Error)
	}
	if report.Deduped != 0 {
		t.Errorf("report.Deduped = %d, want 0 (unchanged chunks belong to the replaced revision)", report.Deduped)
	}
	if report.Indexed != 2 {
		t.Errorf("report.Indexed = %d, want 2 (unchanged plus new paragraph)", report.Indexed)
	}
}

func TestChunkID_Deterministic(t *testing.T) {
	a := ChunkID("doc", "page:1", "Some chunk text here.")
	b := ChunkID("doc", "page:1", "some CHUNK text   here")
	if a != b {
		t.Error("ChunkID() should be stable under canonicalization")
	}
	c := ChunkID("doc", "page:2", "Some chunk text here.")
	if a == c {
		t.Error("ChunkID() should differ across locators")
	}
}

func TestDocumentID(t *testing.T) {
	sum := sha256.Sum256([]byte("content"))
	hash := fmt.Sprintf("%x", sum)
	id := DocumentID(hash)
	if len(id) != 32 {
		t.Errorf("DocumentID() length = %d, want 32", len(id))
	}
	if hash[:32] != id {
		t.Errorf("DocumentID() = %v, want content hash prefix", id)
	}
}
