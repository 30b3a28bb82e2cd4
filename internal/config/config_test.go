package config

import (
	"os"
	"path/filepath"
	"testing"
)

// setEnv sets an environment variable, ignoring errors (for test setup)
func setEnv(key, value string) {
	_ = os.Setenv(key, value)
}

// unsetEnv unsets an environment variable, ignoring errors (for test cleanup)
func unsetEnv(key string) {
	_ = os.Unsetenv(key)
}

var configEnvVars = []string{
	"CORPUS_DIR", "DB_PATH", "SNAPSHOT_DIR",
	"QDRANT_URL", "QDRANT_COLLECTION", "QDRANT_VECTOR_SIZE",
	"EMBEDDING_BASE_URL", "EMBEDDING_MODEL_NAME", "EMBEDDING_API_KEY", "EMBEDDING_RPS",
	"OCR_BASE_URL", "OCR_MIN_NATIVE_WORDS", "OCR_DPI",
	"ASR_BASE_URL", "INGEST_WORKERS", "FUSION_ALPHA", "API_PORT",
}

func saveEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string)
	for _, key := range configEnvVars {
		original[key] = os.Getenv(key)
		unsetEnv(key)
	}
	t.Cleanup(func() {
		for key, value := range original {
			if value != "" {
				setEnv(key, value)
			} else {
				unsetEnv(key)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	saveEnv(t)

	tests := []struct {
		name        string
		setupEnv    func(*testing.T)
		wantErr     bool
		checkConfig func(*Config) bool
	}{
		{
			name: "valid config with all required fields",
			setupEnv: func(t *testing.T) {
				setEnv("CORPUS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "768")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.CorpusDir != "" && cfg.QdrantVectorSize == 768
			},
		},
		{
			name:     "missing CORPUS_DIR",
			setupEnv: func(t *testing.T) {},
			wantErr:  true,
		},
		{
			name: "vector size defaults to probe",
			setupEnv: func(t *testing.T) {
				setEnv("CORPUS_DIR", t.TempDir())
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.QdrantVectorSize == 0
			},
		},
		{
			name: "invalid QDRANT_VECTOR_SIZE",
			setupEnv: func(t *testing.T) {
				setEnv("CORPUS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "invalid")
			},
			wantErr: true,
		},
		{
			name: "negative QDRANT_VECTOR_SIZE",
			setupEnv: func(t *testing.T) {
				setEnv("CORPUS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "-1")
			},
			wantErr: true,
		},
		{
			name: "invalid FUSION_ALPHA",
			setupEnv: func(t *testing.T) {
				setEnv("CORPUS_DIR", t.TempDir())
				setEnv("FUSION_ALPHA", "1.5")
			},
			wantErr: true,
		},
		{
			name: "negative INGEST_WORKERS",
			setupEnv: func(t *testing.T) {
				setEnv("CORPUS_DIR", t.TempDir())
				setEnv("INGEST_WORKERS", "-2")
			},
			wantErr: true,
		},
		{
			name: "default values for optional fields",
			setupEnv: func(t *testing.T) {
				setEnv("CORPUS_DIR", t.TempDir())
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.EmbeddingBaseURL == "http://localhost:8081" &&
					cfg.EmbeddingModelName == "granite-embedding-278m-multilingual" &&
					cfg.EmbeddingAPIKey == "dummy-key" &&
					cfg.DBPath == "./data/corpus-ai.db" &&
					cfg.QdrantURL == "http://localhost:6333" &&
					cfg.QdrantCollection == "corpus_chunks" &&
					cfg.APIPort == "9000" &&
					cfg.FusionAlpha == 0 &&
					cfg.IngestWorkers == 0
			},
		},
		{
			name: "custom optional values",
			setupEnv: func(t *testing.T) {
				tmpDir := t.TempDir()
				setEnv("CORPUS_DIR", t.TempDir())
				setEnv("QDRANT_COLLECTION", "custom_chunks")
				setEnv("EMBEDDING_RPS", "2.5")
				setEnv("FUSION_ALPHA", "0.6")
				setEnv("INGEST_WORKERS", "8")
				customDBPath := filepath.Join(tmpDir, "custom", "db.db")
				setEnv("DB_PATH", customDBPath)
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.QdrantCollection == "custom_chunks" &&
					cfg.EmbeddingRPS == 2.5 &&
					cfg.FusionAlpha == 0.6 &&
					cfg.IngestWorkers == 8 &&
					filepath.Base(cfg.DBPath) == "db.db"
			},
		},
		{
			name: "OCR and ASR endpoints",
			setupEnv: func(t *testing.T) {
				setEnv("CORPUS_DIR", t.TempDir())
				setEnv("OCR_BASE_URL", "http://ocr:8090")
				setEnv("OCR_MIN_NATIVE_WORDS", "25")
				setEnv("OCR_DPI", "300")
				setEnv("ASR_BASE_URL", "http://asr:8091")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.OCRBaseURL == "http://ocr:8090" &&
					cfg.OCRMinNativeWords == 25 &&
					cfg.OCRDPI == 300 &&
					cfg.ASRBaseURL == "http://asr:8091"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Change to a temp directory without .env file to avoid loading it
			tmpDir := t.TempDir()
			originalWd, _ := os.Getwd()
			_ = os.Chdir(tmpDir)
			defer func() {
				_ = os.Chdir(originalWd)
			}()

			for _, key := range configEnvVars {
				unsetEnv(key)
			}

			tt.setupEnv(t)

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error: %v", err)
				return
			}

			if cfg == nil {
				t.Fatal("Load() returned nil config")
			}

			if tt.checkConfig != nil && !tt.checkConfig(cfg) {
				t.Errorf("Load() config validation failed: %+v", cfg)
			}
		})
	}
}

func TestLoad_CreatesDataDirectory(t *testing.T) {
	saveEnv(t)

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test", "db.db")
	snapshotDir := filepath.Join(tmpDir, "snapshots")

	setEnv("CORPUS_DIR", tmpDir)
	setEnv("DB_PATH", dbPath)
	setEnv("SNAPSHOT_DIR", snapshotDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Errorf("Load() should create data directory: %v", err)
	}
	if _, err := os.Stat(snapshotDir); os.IsNotExist(err) {
		t.Errorf("Load() should create snapshot directory: %v", err)
	}

	if cfg.DBPath != dbPath {
		t.Errorf("Load() DBPath = %v, want %v", cfg.DBPath, dbPath)
	}
}

func TestGetEnv(t *testing.T) {
	originalValue := os.Getenv("TEST_ENV_VAR")
	defer func() {
		if originalValue != "" {
			setEnv("TEST_ENV_VAR", originalValue)
		} else {
			unsetEnv("TEST_ENV_VAR")
		}
	}()

	tests := []struct {
		name         string
		setupEnv     func()
		key          string
		defaultValue string
		want         string
	}{
		{
			name: "env var set",
			setupEnv: func() {
				setEnv("TEST_ENV_VAR", "set-value")
			},
			key:          "TEST_ENV_VAR",
			defaultValue: "default",
			want:         "set-value",
		},
		{
			name: "env var not set",
			setupEnv: func() {
				unsetEnv("TEST_ENV_VAR")
			},
			key:          "TEST_ENV_VAR",
			defaultValue: "default",
			want:         "default",
		},
		{
			name: "empty env var uses default",
			setupEnv: func() {
				setEnv("TEST_ENV_VAR", "")
			},
			key:          "TEST_ENV_VAR",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupEnv()
			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}
