package extract

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// TextExtractor emits one ContentBlock per blank-line-separated paragraph.
type TextExtractor struct{}

func (e *TextExtractor) Extract(ctx context.Context, path string) ([]ContentBlock, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := strings.ReplaceAll(string(raw), "\r\n", "\n")
	var blocks []ContentBlock
	for _, para := range paragraphBreak.Split(content, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		blocks = append(blocks, ContentBlock{
			Text:             para,
			NativeConfidence: 1.0,
		})
	}
	return blocks, nil
}
