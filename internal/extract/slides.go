package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var slidePathRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// SlidesExtractor emits one ContentBlock per pptx slide. Slide text is the
// concatenation of text runs in document order; tables are rendered as
// pipe-markup rows.
type SlidesExtractor struct{}

func (e *SlidesExtractor) Extract(ctx context.Context, path string) ([]ContentBlock, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}
	defer func() {
		_ = archive.Close()
	}()

	type slideFile struct {
		number int
		file   *zip.File
	}
	var slides []slideFile
	for _, f := range archive.File {
		m := slidePathRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{number: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	blocks := make([]ContentBlock, 0, len(slides))
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rc, err := s.file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: slide %d: %v", ErrCorruptInput, s.number, err)
		}
		raw, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: slide %d: %v", ErrCorruptInput, s.number, err)
		}

		text, tables, err := parseSlideXML(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: slide %d: %v", ErrCorruptInput, s.number, err)
		}

		blocks = append(blocks, ContentBlock{
			Text:             text,
			TableMarkup:      tables,
			Locator:          Locator{Slide: s.number},
			NativeConfidence: 1.0,
		})
	}

	return blocks, nil
}

// parseSlideXML walks DrawingML, collecting a:t runs. Runs inside a:tbl are
// grouped into rows (a:tr) and cells (a:tc) and rendered separately.
func parseSlideXML(raw []byte) (string, string, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(raw)))

	var text strings.Builder
	var tableLines []string
	var cell strings.Builder
	var rowCells []string

	tableDepth := 0
	inRun := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				rowCells = rowCells[:0]
			case "tc":
				cell.Reset()
			case "t":
				inRun = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth--
			case "tr":
				if tableDepth > 0 && len(rowCells) > 0 {
					tableLines = append(tableLines, strings.Join(rowCells, " | "))
				}
			case "tc":
				rowCells = append(rowCells, strings.TrimSpace(cell.String()))
			case "t":
				inRun = false
			case "p":
				if tableDepth == 0 {
					text.WriteString("\n")
				}
			}
		case xml.CharData:
			if !inRun {
				continue
			}
			if tableDepth > 0 {
				cell.Write(t)
			} else {
				text.Write(t)
			}
		}
	}

	return strings.TrimSpace(text.String()), strings.Join(tableLines, "\n"), nil
}
