package stt

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clinicai/server/domain/repositories"
)

// MockTranscriber is an offline Transcriber for local development and tests.
type MockTranscriber struct {
	logger *zap.Logger

	// Result and Err, when set, override the canned behavior.
	Result *repositories.TranscriptionResult
	Err    error
}

// NewMockTranscriber creates a mock transcriber.
func NewMockTranscriber(logger *zap.Logger) *MockTranscriber {
	return &MockTranscriber{logger: logger}
}

// Transcribe returns a canned consultation transcript. An audioRef containing
// "empty" simulates a recording with no detectable speech.
func (m *MockTranscriber) Transcribe(_ context.Context, audioRef string, language string) (repositories.TranscriptionResult, error) {
	m.logger.Info("mock transcription",
		zap.String("audio_ref", audioRef),
		zap.String("language", language))

	if m.Err != nil {
		return repositories.TranscriptionResult{Status: "failed"}, m.Err
	}
	if m.Result != nil {
		return *m.Result, nil
	}
	if strings.Contains(audioRef, "empty") {
		return repositories.TranscriptionResult{Status: "failed"}, fmt.Errorf("no speech detected in audio")
	}

	transcript := "Doctor: What brings you in today? Patient: I have had a fever and cough for three days. Doctor: Any trouble breathing? Patient: No, just tired."
	return repositories.TranscriptionResult{
		Status:          "completed",
		Transcript:      transcript,
		WordCount:       len(strings.Fields(transcript)),
		DurationSeconds: 42.5,
	}, nil
}
