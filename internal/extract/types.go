package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when no extractor exists for a file.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrCorruptInput is returned when a file cannot be parsed by its extractor.
	// It aborts ingestion of that document only.
	ErrCorruptInput = errors.New("corrupt input")
)

// SourceKind identifies the extraction strategy for a source file.
type SourceKind string

const (
	KindPDF      SourceKind = "pdf"
	KindSlides   SourceKind = "slides"
	KindDocx     SourceKind = "docx"
	KindMarkdown SourceKind = "markdown"
	KindText     SourceKind = "text"
	KindMedia    SourceKind = "media"
)

// kindByExt maps file extensions to source kinds.
var kindByExt = map[string]SourceKind{
	".pdf":  KindPDF,
	".pptx": KindSlides,
	".docx": KindDocx,
	".md":   KindMarkdown,
	".txt":  KindText,
	".mp4":  KindMedia,
	".mov":  KindMedia,
	".mp3":  KindMedia,
	".wav":  KindMedia,
	".m4a":  KindMedia,
}

// ParseKind validates a caller-supplied source kind name.
func ParseKind(s string) (SourceKind, error) {
	switch kind := SourceKind(strings.ToLower(s)); kind {
	case KindPDF, KindSlides, KindDocx, KindMarkdown, KindText, KindMedia:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrUnsupportedFormat, s)
	}
}

// KindFromPath determines the source kind from a file extension.
func KindFromPath(path string) (SourceKind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	kind, ok := kindByExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
	return kind, nil
}

// Locator identifies where in the source document a block came from.
// Exactly one positional field is set, plus an optional Section label.
type Locator struct {
	Page      int    `json:"page,omitempty"`      // 1-based PDF page
	Slide     int    `json:"slide,omitempty"`     // 1-based slide number
	Section   string `json:"section,omitempty"`   // heading path or style label
	TimeRange string `json:"timerange,omitempty"` // "hh:mm:ss-hh:mm:ss" for media
}

// String renders a stable identifier for the locator. It participates in
// chunk id derivation, so the format must not change between ingestions.
func (l Locator) String() string {
	switch {
	case l.Page > 0:
		return fmt.Sprintf("page:%d", l.Page)
	case l.Slide > 0:
		return fmt.Sprintf("slide:%d", l.Slide)
	case l.TimeRange != "":
		return "time:" + l.TimeRange
	case l.Section != "":
		return "section:" + l.Section
	default:
		return "doc"
	}
}

// ContentBlock is one unit of extracted content: a page, slide, heading
// section, paragraph run, or merged transcript span.
type ContentBlock struct {
	Text        string
	TableMarkup string // pipe-separated table rendering, empty when none
	Locator     Locator
	// NativeConfidence reflects how much the native extraction can be
	// trusted. Extractors emit 1.0; the OCR gate lowers it when escalation
	// was needed or failed.
	NativeConfidence float64
	OCRApplied       bool
}

// WordCount reports the number of whitespace-separated words in the block
// text. The OCR gate uses it as the native-text density signal.
func (b ContentBlock) WordCount() int {
	return len(strings.Fields(b.Text))
}

// Extractor converts a raw file into an ordered block sequence. Extractors
// are pure transforms: they read the input and nothing else.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]ContentBlock, error)
}

// ForKind returns the extractor for a text-bearing source kind.
// KindMedia has no text extractor; the pipeline routes media files to the
// transcription capability instead.
func ForKind(kind SourceKind) (Extractor, error) {
	switch kind {
	case KindPDF:
		return &PDFExtractor{}, nil
	case KindSlides:
		return &SlidesExtractor{}, nil
	case KindDocx:
		return &DocxExtractor{}, nil
	case KindMarkdown:
		return NewMarkdownExtractor(), nil
	case KindText:
		return &TextExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: no extractor for kind %q", ErrUnsupportedFormat, kind)
	}
}
