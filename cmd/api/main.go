package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"corpus-ai/internal/asr"
	"corpus-ai/internal/config"
	"corpus-ai/internal/corpus"
	"corpus-ai/internal/http"
	"corpus-ai/internal/indexer"
	"corpus-ai/internal/llm"
	"corpus-ai/internal/ocr"
	"corpus-ai/internal/rag"
	"corpus-ai/internal/storage"
	"corpus-ai/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	docRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)

	ctx := context.Background()

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	// Validate embedding client and resolve the vector size (fail-fast).
	// An unset QDRANT_VECTOR_SIZE is probed from the model itself.
	embedder := llm.NewEmbeddingsClient(
		cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName,
		cfg.QdrantVectorSize, cfg.EmbeddingRPS)
	probe, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(probe) == 0 || len(probe[0]) == 0 {
		log.Fatalf("Embedding client returned an empty vector")
	}
	vectorSize := cfg.QdrantVectorSize
	if vectorSize == 0 {
		vectorSize = len(probe[0])
		embedder.ExpectedSize = vectorSize
	} else if len(probe[0]) != vectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", vectorSize, len(probe[0]))
	}
	slog.Info("Embedding client validated", "model", cfg.EmbeddingModelName, "vector_size", vectorSize)

	// Ensure collection exists with the resolved vector size
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, vectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", vectorSize)

	// Optional OCR escalation
	var gate *ocr.Gate
	if cfg.OCRBaseURL != "" {
		gate = ocr.NewGate(
			ocr.NewClient(cfg.OCRBaseURL, cfg.EmbeddingAPIKey, cfg.OCRLanguage),
			ocr.NewPopplerRasterizer(cfg.OCRDPI),
			cfg.OCRMinNativeWords,
		)
		slog.Info("OCR escalation enabled", "base_url", cfg.OCRBaseURL)
	}

	// Optional audio/video transcription
	var transcriber asr.Transcriber
	if cfg.ASRBaseURL != "" {
		transcriber = asr.NewClient(cfg.ASRBaseURL, cfg.EmbeddingAPIKey, cfg.ASRModelName)
		slog.Info("Transcription enabled", "base_url", cfg.ASRBaseURL, "model", cfg.ASRModelName)
	}

	var snapshots *storage.SnapshotWriter
	if cfg.SnapshotDir != "" {
		snapshots = storage.NewSnapshotWriter(cfg.SnapshotDir)
		slog.Info("Chunk snapshots enabled", "dir", cfg.SnapshotDir)
	}

	// Seed the deduper with fingerprints already in the index so re-ingests
	// recognize previously stored content.
	fingerprints, err := chunkRepo.ListFingerprints(ctx)
	if err != nil {
		log.Fatalf("Failed to load stored fingerprints: %v", err)
	}
	deduper := indexer.NewDeduper(indexer.DeduperOptions{}, fingerprints)
	defer deduper.Close()
	slog.Info("Deduper seeded", "fingerprints", len(fingerprints))

	pipeline := indexer.NewPipeline(
		docRepo,
		chunkRepo,
		embedder,
		vectorStore,
		cfg.QdrantCollection,
		indexer.PipelineOptions{
			Scanner:     corpus.NewScanner(cfg.CorpusDir),
			Gate:        gate,
			Transcriber: transcriber,
			Snapshots:   snapshots,
			Deduper:     deduper,
			Workers:     cfg.IngestWorkers,
		},
	)

	engine := rag.NewHybridEngine(
		embedder,
		vectorStore,
		cfg.QdrantCollection,
		chunkRepo,
		docRepo,
		cfg.FusionAlpha,
	)
	slog.Info("Retrieval engine initialized")

	deps := &http.Deps{
		Engine:         engine,
		Pipeline:       pipeline,
		VectorStore:    vectorStore,
		DB:             db,
		CollectionName: cfg.QdrantCollection,
		EmbeddingModel: cfg.EmbeddingModelName,
	}
	router := http.NewRouter(deps)

	// Start ingestion in background after the router is ready
	go func() {
		ingestCtx := context.Background()
		slog.Info("Starting background corpus ingestion", "dir", cfg.CorpusDir)
		reports, err := pipeline.IngestAll(ingestCtx)
		if err != nil {
			slog.Error("Ingestion aborted", "error", err)
			return
		}
		slog.Info("Ingestion completed", "documents", len(reports))
	}()

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
