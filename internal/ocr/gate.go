package ocr

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_ocr.go -package=mocks corpus-ai/internal/ocr Recognizer,Rasterizer

import (
	"context"
	"errors"
	"strings"

	"corpus-ai/internal/contextutil"
	"corpus-ai/internal/extract"
)

// ErrOCRFailure is returned when the OCR capability is unavailable or
// rejects the input. The affected block keeps its native text.
var ErrOCRFailure = errors.New("ocr failure")

// Recognizer is the external optical character recognition capability.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
}

// Rasterizer renders one page or slide of a source file as an image so it
// can be handed to the Recognizer.
type Rasterizer interface {
	RenderPage(ctx context.Context, path string, page int) ([]byte, error)
}

// degradedConfidence marks blocks whose escalation failed and which kept
// their sparse native text.
const degradedConfidence = 0.3

// Gate escalates low-density blocks to OCR. OCR only improves yield on
// image-dominant or scanned pages, so blocks with enough native text pass
// through untouched.
type Gate struct {
	recognizer Recognizer
	rasterizer Rasterizer
	// MinNativeWords is the native-text density threshold below which a
	// paginated block is escalated.
	MinNativeWords int
}

// NewGate creates an escalation gate. A nil recognizer or rasterizer
// disables escalation entirely.
func NewGate(recognizer Recognizer, rasterizer Rasterizer, minNativeWords int) *Gate {
	if minNativeWords <= 0 {
		minNativeWords = 10
	}
	return &Gate{
		recognizer:     recognizer,
		rasterizer:     rasterizer,
		MinNativeWords: minNativeWords,
	}
}

// Apply inspects each paginated/slide block and replaces sparse native text
// with OCR output where that yields more words. Escalation failures are
// non-fatal: the block keeps its native text at degraded confidence.
// Returns the processed blocks and the number of escalations attempted.
func (g *Gate) Apply(ctx context.Context, path string, blocks []extract.ContentBlock) ([]extract.ContentBlock, int, error) {
	if g.recognizer == nil || g.rasterizer == nil {
		return blocks, 0, nil
	}

	logger := contextutil.LoggerFromContext(ctx)
	escalations := 0

	out := make([]extract.ContentBlock, len(blocks))
	for i, block := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, escalations, err
		}

		out[i] = block
		page := block.Locator.Page
		if page == 0 {
			page = block.Locator.Slide
		}
		if page == 0 || block.WordCount() >= g.MinNativeWords {
			continue
		}

		escalations++
		text, confidence, err := g.escalate(ctx, path, page)
		if err != nil {
			logger.WarnContext(ctx, "ocr escalation failed, keeping native text",
				"path", path, "page", page, "error", err)
			out[i].NativeConfidence = degradedConfidence
			continue
		}

		if len(strings.Fields(text)) > block.WordCount() {
			out[i].Text = text
			out[i].NativeConfidence = confidence
			out[i].OCRApplied = true
		}
	}

	return out, escalations, nil
}

func (g *Gate) escalate(ctx context.Context, path string, page int) (string, float64, error) {
	image, err := g.rasterizer.RenderPage(ctx, path, page)
	if err != nil {
		return "", 0, err
	}
	return g.recognizer.Recognize(ctx, image)
}
