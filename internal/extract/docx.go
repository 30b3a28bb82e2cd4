package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DocxExtractor walks word/document.xml and emits one ContentBlock per
// heading-delimited section. Heading paragraphs (pStyle HeadingN) label the
// section; tables become pipe-markup attached to the section in progress.
type DocxExtractor struct{}

func (e *DocxExtractor) Extract(ctx context.Context, path string) ([]ContentBlock, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}
	defer func() {
		_ = archive.Close()
	}()

	var doc *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: missing word/document.xml", ErrCorruptInput)
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}
	raw, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paras, err := parseDocxParagraphs(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	return sectionBlocks(paras), nil
}

// docxParagraph is a flattened paragraph or table from the document body.
type docxParagraph struct {
	text    string
	style   string // pStyle value, e.g. "Heading1"
	isTable bool
}

func parseDocxParagraphs(raw []byte) ([]docxParagraph, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(raw)))

	var paras []docxParagraph
	var cur strings.Builder
	var curStyle string
	var rowCells []string
	var cell strings.Builder
	var tableLines []string

	tableDepth := 0
	inText := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
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
			case "p":
				if tableDepth == 0 {
					cur.Reset()
					curStyle = ""
				}
			case "pStyle":
				if tableDepth == 0 {
					for _, attr := range t.Attr {
						if attr.Name.Local == "val" {
							curStyle = attr.Value
						}
					}
				}
			case "t":
				inText = true
			case "br":
				if tableDepth == 0 {
					cur.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(tableLines) > 0 {
					paras = append(paras, docxParagraph{
						text:    strings.Join(tableLines, "\n"),
						isTable: true,
					})
					tableLines = tableLines[:0]
				}
			case "tr":
				if tableDepth > 0 && len(rowCells) > 0 {
					tableLines = append(tableLines, strings.Join(rowCells, " | "))
				}
			case "tc":
				rowCells = append(rowCells, strings.TrimSpace(cell.String()))
			case "p":
				if tableDepth == 0 {
					if text := strings.TrimSpace(cur.String()); text != "" {
						paras = append(paras, docxParagraph{text: text, style: curStyle})
					}
				} else {
					cell.WriteString(" ")
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if !inText {
				continue
			}
			if tableDepth > 0 {
				cell.Write(t)
			} else {
				cur.Write(t)
			}
		}
	}

	return paras, nil
}

// sectionBlocks groups paragraphs into blocks, starting a new block at each
// heading paragraph. The heading text becomes the section label so the
// chunker can respect heading boundaries downstream.
func sectionBlocks(paras []docxParagraph) []ContentBlock {
	var blocks []ContentBlock
	var buf []string
	var tables []string
	section := ""

	flush := func() {
		if len(buf) == 0 && len(tables) == 0 {
			return
		}
		blocks = append(blocks, ContentBlock{
			Text:             strings.Join(buf, "\n"),
			TableMarkup:      strings.Join(tables, "\n"),
			Locator:          Locator{Section: section},
			NativeConfidence: 1.0,
		})
		buf = buf[:0]
		tables = tables[:0]
	}

	for _, p := range paras {
		switch {
		case p.isTable:
			tables = append(tables, p.text)
		case isHeadingStyle(p.style):
			flush()
			section = p.text
			buf = append(buf, p.text)
		default:
			buf = append(buf, p.text)
		}
	}
	flush()

	return blocks
}

func isHeadingStyle(style string) bool {
	return strings.HasPrefix(style, "Heading") || style == "Title"
}
