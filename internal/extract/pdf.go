package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// columnGap is the horizontal distance between text fragments on the same
// row that makes them count as separate table cells.
const columnGap = 24.0

// PDFExtractor emits one ContentBlock per page with native text plus a
// pipe-markup rendering of multi-column rows appended as table markup.
type PDFExtractor struct{}

func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]ContentBlock, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	blocks := make([]ContentBlock, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		block := ContentBlock{
			Locator:          Locator{Page: i},
			NativeConfidence: 1.0,
		}

		text, err := page.GetPlainText(nil)
		if err == nil {
			block.Text = text
		}
		// A page whose text stream fails to decode is kept as an empty
		// block so the OCR gate can escalate it.

		if rows, err := page.GetTextByRow(); err == nil {
			block.TableMarkup = rowsAsTable(rows)
		}

		blocks = append(blocks, block)
	}

	return blocks, nil
}

// rowsAsTable renders rows that look tabular (two or more cells separated by
// a clear horizontal gap) as pipe-joined lines. Pages without at least two
// such rows yield no markup.
func rowsAsTable(rows pdf.Rows) string {
	var lines []string
	for _, row := range rows {
		cells := splitRowCells(row)
		if len(cells) >= 2 {
			lines = append(lines, strings.Join(cells, " | "))
		}
	}
	if len(lines) < 2 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func splitRowCells(row *pdf.Row) []string {
	var cells []string
	var cur strings.Builder
	lastEnd := -1.0

	for _, t := range row.Content {
		s := strings.TrimSpace(t.S)
		if s == "" {
			continue
		}
		if lastEnd >= 0 && t.X-lastEnd > columnGap {
			if cell := strings.TrimSpace(cur.String()); cell != "" {
				cells = append(cells, cell)
			}
			cur.Reset()
		} else if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(s)
		lastEnd = t.X + t.W
	}
	if cell := strings.TrimSpace(cur.String()); cell != "" {
		cells = append(cells, cell)
	}
	return cells
}
