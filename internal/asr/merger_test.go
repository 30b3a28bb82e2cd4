package asr

import (
	"strings"
	"testing"
)

func TestMergeSegments_GapBreak(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 2, Text: "hello"},
		{Start: 2.1, End: 4, Text: "world"},
		{Start: 10, End: 12, Text: "bye"},
	}

	blocks := MergeSegments(segments, DefaultMergeOptions())
	if len(blocks) != 2 {
		t.Fatalf("expected 2 spans, got %d: %+v", len(blocks), blocks)
	}

	if blocks[0].Text != "hello world" {
		t.Errorf("first span text = %q, want %q", blocks[0].Text, "hello world")
	}
	if blocks[0].Locator.TimeRange != "00:00:00-00:00:04" {
		t.Errorf("first span range = %q, want 00:00:00-00:00:04", blocks[0].Locator.TimeRange)
	}
	if blocks[1].Text != "bye" {
		t.Errorf("second span text = %q, want %q", blocks[1].Text, "bye")
	}
	if blocks[1].Locator.TimeRange != "00:00:10-00:00:12" {
		t.Errorf("second span range = %q, want 00:00:10-00:00:12", blocks[1].Locator.TimeRange)
	}
}

func TestMergeSegments_MaxSpanSeconds(t *testing.T) {
	opts := MergeOptions{MaxSpanSeconds: 10, MaxSpanChars: 10000, GapBreakSeconds: 5}
	segments := []Segment{
		{Start: 0, End: 6, Text: "first part"},
		{Start: 6, End: 12, Text: "second part"},
		{Start: 12, End: 14, Text: "third part"},
	}

	blocks := MergeSegments(segments, opts)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 spans, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Text != "first part" {
		t.Errorf("first span = %q, want %q", blocks[0].Text, "first part")
	}
	if blocks[1].Text != "second part third part" {
		t.Errorf("second span = %q, want %q", blocks[1].Text, "second part third part")
	}
}

func TestMergeSegments_MaxSpanChars(t *testing.T) {
	opts := MergeOptions{MaxSpanSeconds: 1000, MaxSpanChars: 20, GapBreakSeconds: 100}
	segments := []Segment{
		{Start: 0, End: 1, Text: "aaaaaaaaaa"},
		{Start: 1, End: 2, Text: "bbbbbbbbbb"},
		{Start: 2, End: 3, Text: "cc"},
	}

	blocks := MergeSegments(segments, opts)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 spans, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Text != "aaaaaaaaaa" {
		t.Errorf("first span = %q", blocks[0].Text)
	}
}

func TestMergeSegments_OversizedSingleSegment(t *testing.T) {
	opts := DefaultMergeOptions()
	segments := []Segment{
		{Start: 0, End: 90, Text: "one very long uninterrupted segment"},
	}

	blocks := MergeSegments(segments, opts)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 span, got %d", len(blocks))
	}
	if blocks[0].Locator.TimeRange != "00:00:00-00:01:30" {
		t.Errorf("range = %q, want 00:00:00-00:01:30", blocks[0].Locator.TimeRange)
	}
}

func TestMergeSegments_Confidence(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1, Text: "high", Confidence: 0.95},
		{Start: 1, End: 2, Text: "low", Confidence: 0.4},
		{Start: 2, End: 3, Text: "unreported", Confidence: 0},
	}

	blocks := MergeSegments(segments, DefaultMergeOptions())
	if len(blocks) != 1 {
		t.Fatalf("expected 1 span, got %d", len(blocks))
	}
	if blocks[0].NativeConfidence != 0.4 {
		t.Errorf("span confidence = %v, want 0.4 (lowest reported)", blocks[0].NativeConfidence)
	}
}

func TestMergeSegments_SkipsEmptySegments(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1, Text: "  "},
		{Start: 1, End: 2, Text: "spoken"},
		{Start: 2, End: 3, Text: ""},
	}

	blocks := MergeSegments(segments, DefaultMergeOptions())
	if len(blocks) != 1 || blocks[0].Text != "spoken" {
		t.Fatalf("expected one span with %q, got %+v", "spoken", blocks)
	}
}

func TestMergeSegments_Empty(t *testing.T) {
	if blocks := MergeSegments(nil, DefaultMergeOptions()); len(blocks) != 0 {
		t.Errorf("expected no spans, got %+v", blocks)
	}
}

func TestFormatTimecode(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{61.9, "00:01:01"},
		{3661, "01:01:01"},
		{7322.5, "02:02:02"},
	}
	for _, tt := range tests {
		if got := formatTimecode(tt.seconds); got != tt.want {
			t.Errorf("formatTimecode(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestMergeSegments_LongTranscript(t *testing.T) {
	// A run of closely spaced segments accumulates until a cap trips, never
	// producing a span over the duration limit unless a single segment is.
	var segments []Segment
	for i := 0; i < 40; i++ {
		start := float64(i) * 5
		segments = append(segments, Segment{
			Start: start,
			End:   start + 4.5,
			Text:  "segment " + strings.Repeat("x", 10),
		})
	}

	blocks := MergeSegments(segments, DefaultMergeOptions())
	if len(blocks) < 2 {
		t.Fatalf("expected multiple spans, got %d", len(blocks))
	}
	for _, b := range blocks {
		if len(b.Text) >= 1200+20 {
			t.Errorf("span exceeds char cap: %d chars", len(b.Text))
		}
	}
}
