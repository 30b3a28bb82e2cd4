package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	CorpusDir          string
	DBPath             string
	SnapshotDir        string
	QdrantURL          string
	QdrantCollection   string
	QdrantVectorSize   int
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	EmbeddingRPS       float64
	OCRBaseURL         string
	OCRLanguage        string
	OCRMinNativeWords  int
	OCRDPI             int
	ASRBaseURL         string
	ASRModelName       string
	IngestWorkers      int
	FusionAlpha        float64
	APIPort            string
	LogLevel           slog.Level
	LogFormat          string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		CorpusDir:          getEnv("CORPUS_DIR", ""),
		DBPath:             getEnv("DB_PATH", "./data/corpus-ai.db"),
		SnapshotDir:        getEnv("SNAPSHOT_DIR", ""),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "corpus_chunks"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", "dummy-key"),
		OCRBaseURL:         getEnv("OCR_BASE_URL", ""),
		OCRLanguage:        getEnv("OCR_LANGUAGE", "eng"),
		ASRBaseURL:         getEnv("ASR_BASE_URL", ""),
		ASRModelName:       getEnv("ASR_MODEL_NAME", "whisper-large-v3"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	// Vector size must match the embedding model's output dimensions. Zero
	// means probe the model at startup and size the collection from that.
	cfg.QdrantVectorSize, err = getEnvInt("QDRANT_VECTOR_SIZE", 0)
	if err != nil {
		return nil, err
	}
	if cfg.QdrantVectorSize < 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must not be negative")
	}

	cfg.EmbeddingRPS, err = getEnvFloat("EMBEDDING_RPS", 0)
	if err != nil {
		return nil, err
	}

	cfg.OCRMinNativeWords, err = getEnvInt("OCR_MIN_NATIVE_WORDS", 0)
	if err != nil {
		return nil, err
	}
	cfg.OCRDPI, err = getEnvInt("OCR_DPI", 0)
	if err != nil {
		return nil, err
	}

	cfg.IngestWorkers, err = getEnvInt("INGEST_WORKERS", 0)
	if err != nil {
		return nil, err
	}
	if cfg.IngestWorkers < 0 {
		return nil, fmt.Errorf("INGEST_WORKERS must not be negative")
	}

	cfg.FusionAlpha, err = getEnvFloat("FUSION_ALPHA", 0)
	if err != nil {
		return nil, err
	}
	if cfg.FusionAlpha != 0 && (cfg.FusionAlpha <= 0 || cfg.FusionAlpha >= 1) {
		return nil, fmt.Errorf("FUSION_ALPHA must be in (0, 1)")
	}

	// Validate required fields
	if cfg.CorpusDir == "" {
		return nil, fmt.Errorf("CORPUS_DIR is required")
	}

	// Create the data directory if it doesn't exist
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if cfg.SnapshotDir != "" {
		if err := os.MkdirAll(cfg.SnapshotDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

// getEnvFloat gets a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}
