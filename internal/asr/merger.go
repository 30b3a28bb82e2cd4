package asr

import (
	"fmt"
	"strings"

	"corpus-ai/internal/extract"
)

// MergeOptions bound the spans produced by MergeSegments.
type MergeOptions struct {
	// MaxSpanSeconds caps the duration of a merged span.
	MaxSpanSeconds float64
	// MaxSpanChars caps the accumulated text length of a merged span.
	MaxSpanChars int
	// GapBreakSeconds starts a new span when the silence between consecutive
	// segments reaches this threshold.
	GapBreakSeconds float64
}

// DefaultMergeOptions returns the merge thresholds tuned for sentence-length
// speech segments.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		MaxSpanSeconds:  60.0,
		MaxSpanChars:    1200,
		GapBreakSeconds: 1.5,
	}
}

// MergeSegments folds raw transcription segments into coherent, chunk-sized
// spans. A span is emitted when the inter-segment gap reaches GapBreakSeconds,
// when the span would exceed MaxSpanSeconds or MaxSpanChars, or at end of
// stream. A single segment longer than MaxSpanSeconds is emitted on its own
// rather than split.
func MergeSegments(segments []Segment, opts MergeOptions) []extract.ContentBlock {
	var blocks []extract.ContentBlock
	var parts []string
	var spanStart, lastEnd float64
	var minConfidence float64
	chars := 0
	started := false

	flush := func() {
		if !started || len(parts) == 0 {
			return
		}
		blocks = append(blocks, extract.ContentBlock{
			Text: strings.Join(parts, " "),
			Locator: extract.Locator{
				TimeRange: fmt.Sprintf("%s-%s", formatTimecode(spanStart), formatTimecode(lastEnd)),
			},
			NativeConfidence: minConfidence,
		})
		parts = parts[:0]
		chars = 0
		started = false
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if started {
			gap := seg.Start - lastEnd
			tooLong := seg.End-spanStart >= opts.MaxSpanSeconds
			tooBig := chars+len(text) >= opts.MaxSpanChars
			if gap >= opts.GapBreakSeconds || tooLong || tooBig {
				flush()
			}
		}

		if !started {
			spanStart = seg.Start
			minConfidence = 1.0
			started = true
		}
		// Zero means the provider reported no confidence; don't let it
		// mark the whole span unreliable.
		if seg.Confidence > 0 && seg.Confidence < minConfidence {
			minConfidence = seg.Confidence
		}

		parts = append(parts, text)
		chars += len(text) + 1
		lastEnd = seg.End
	}
	flush()

	return blocks
}

// formatTimecode renders seconds as hh:mm:ss.
func formatTimecode(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
