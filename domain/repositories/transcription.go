package repositories

import "context"

// TranscriptionResult is what a speech service reports for one recording.
// Status "completed" alone is not success: callers also require a non-empty
// transcript and a non-zero word count.
type TranscriptionResult struct {
	Status          string  `json:"status"`
	Transcript      string  `json:"transcript"`
	WordCount       int     `json:"word_count"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Transcriber abstracts speech-to-text services. audioRef is an opaque
// reference (blob path, signed URL) understood by the implementation.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string, language string) (TranscriptionResult, error)
}
