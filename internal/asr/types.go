package asr

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_transcriber.go -package=mocks corpus-ai/internal/asr Transcriber

import (
	"context"
	"errors"
)

// ErrTranscriptionFailure is returned when the transcription capability is
// unavailable or rejects the input. The document degrades rather than
// aborting the batch.
var ErrTranscriptionFailure = errors.New("transcription failure")

// Segment is a raw transcription segment before merging. Segments are
// consumed by the merger and never persisted.
type Segment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"` // seconds from media start
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Transcriber is the external transcription capability.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]Segment, error)
}
