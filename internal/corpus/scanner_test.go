package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestScanner_Scan(t *testing.T) {
	tmpDir := t.TempDir()

	testFiles := []string{
		"report.pdf",
		"notes.md",
		"plain.txt",
		"slides/deck.pptx",
		"media/talk.mp3",
		"nested/deep/memo.docx",
	}
	unsupported := []string{
		"archive.zip",
		"binary.exe",
		"nested/image.png",
	}

	for _, rel := range append(append([]string{}, testFiles...), unsupported...) {
		fullPath := filepath.Join(tmpDir, rel)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte("content"), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}

	// Hidden directories are skipped entirely.
	hiddenDir := filepath.Join(tmpDir, ".cache")
	if err := os.MkdirAll(hiddenDir, 0755); err != nil {
		t.Fatalf("Failed to create hidden dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hiddenDir, "stale.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create hidden file: %v", err)
	}

	scanner := NewScanner(tmpDir)
	paths, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(paths) != len(testFiles) {
		t.Fatalf("got %d paths, want %d: %v", len(paths), len(testFiles), paths)
	}
	found := make(map[string]bool, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(tmpDir, p)
		if err != nil {
			t.Fatalf("Rel: %v", err)
		}
		found[filepath.ToSlash(rel)] = true
	}
	for _, want := range testFiles {
		if !found[want] {
			t.Errorf("expected %s in scan results", want)
		}
	}
	for _, skip := range unsupported {
		if found[skip] {
			t.Errorf("unsupported file %s should not be scanned", skip)
		}
	}
}

func TestScanner_Scan_EmptyDir(t *testing.T) {
	scanner := NewScanner(t.TempDir())
	paths, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected no paths, got %v", paths)
	}
}

func TestScanner_Scan_MissingRoot(t *testing.T) {
	scanner := NewScanner(filepath.Join(t.TempDir(), "nope"))
	if _, err := scanner.Scan(context.Background()); err == nil {
		t.Error("expected error for missing corpus root")
	}
}

func TestScanner_Scan_Cancelled(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := NewScanner(tmpDir)
	if _, err := scanner.Scan(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
