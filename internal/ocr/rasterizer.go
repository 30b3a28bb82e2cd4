package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// PopplerRasterizer renders PDF/slide pages to PNG via the pdftoppm tool.
type PopplerRasterizer struct {
	// DPI for the rendered image. OCR quality degrades below ~150.
	DPI int
}

func NewPopplerRasterizer(dpi int) *PopplerRasterizer {
	if dpi <= 0 {
		dpi = 200
	}
	return &PopplerRasterizer{DPI: dpi}
}

// RenderPage renders a single page to PNG and returns the image bytes.
func (r *PopplerRasterizer) RenderPage(ctx context.Context, path string, page int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "ocr-render-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-r", strconv.Itoa(r.DPI),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		path, prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, string(out))
	}

	matches, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no output for page %d", page)
	}

	image, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}
	return image, nil
}
