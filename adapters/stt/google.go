package stt

import (
	"context"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/clinicai/server/domain/repositories"
)

// GoogleTranscriber implements Transcriber using Google Cloud Speech-to-Text
// batch recognition. audioRef is either a gs:// URI or a local file path.
type GoogleTranscriber struct {
	logger     *zap.Logger
	encoding   string
	sampleRate int
}

// NewGoogleTranscriber creates a batch transcriber. encoding and sampleRate
// describe the recordings the clinic uploads; zero values default to
// LINEAR16 at 16 kHz.
func NewGoogleTranscriber(logger *zap.Logger, encoding string, sampleRate int) *GoogleTranscriber {
	if encoding == "" {
		encoding = "LINEAR16"
	}
	if sampleRate == 0 {
		sampleRate = 16000
	}
	return &GoogleTranscriber{
		logger:     logger,
		encoding:   encoding,
		sampleRate: sampleRate,
	}
}

// Transcribe runs batch recognition over the full recording and aggregates
// all result alternatives into one transcript.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, audioRef string, language string) (repositories.TranscriptionResult, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return repositories.TranscriptionResult{Status: "failed"}, fmt.Errorf("failed to create speech client: %w", err)
	}
	defer client.Close()

	encoding, err := getAudioEncoding(g.encoding)
	if err != nil {
		return repositories.TranscriptionResult{Status: "failed"}, err
	}
	if language == "" {
		language = "en-US"
	}

	audio, err := resolveAudioSource(audioRef)
	if err != nil {
		return repositories.TranscriptionResult{Status: "failed"}, err
	}

	op, err := client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(g.sampleRate),
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		Audio: audio,
	})
	if err != nil {
		return repositories.TranscriptionResult{Status: "failed"}, fmt.Errorf("failed to start recognition: %w", err)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		return repositories.TranscriptionResult{Status: "failed"}, fmt.Errorf("recognition failed: %w", err)
	}

	var transcript strings.Builder
	var durationSeconds float64
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		if transcript.Len() > 0 {
			transcript.WriteString(" ")
		}
		transcript.WriteString(strings.TrimSpace(result.Alternatives[0].Transcript))
		if result.ResultEndTime != nil {
			durationSeconds = result.ResultEndTime.AsDuration().Seconds()
		}
	}

	text := strings.TrimSpace(transcript.String())
	if text == "" {
		return repositories.TranscriptionResult{Status: "failed"}, fmt.Errorf("no speech detected in audio")
	}

	wordCount := len(strings.Fields(text))
	g.logger.Info("transcription completed",
		zap.String("audio_ref", audioRef),
		zap.Int("word_count", wordCount),
		zap.Float64("duration_seconds", durationSeconds))

	return repositories.TranscriptionResult{
		Status:          "completed",
		Transcript:      text,
		WordCount:       wordCount,
		DurationSeconds: durationSeconds,
	}, nil
}

func resolveAudioSource(audioRef string) (*speechpb.RecognitionAudio, error) {
	if strings.HasPrefix(audioRef, "gs://") {
		return &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: audioRef},
		}, nil
	}
	data, err := os.ReadFile(audioRef)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file %s: %w", audioRef, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no audio data received")
	}
	return &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
	}, nil
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
