// Package stt provides speech-to-text backends. Whisper is the default; the
// Google Cloud backend is selected with LECTURA_STT_PROVIDER=google.
package stt

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"lectura/domain/repositories"
)

// WhisperTranscriber implements the Transcriber interface using OpenAI's
// Whisper API.
type WhisperTranscriber struct {
	client openai.Client
	logger *zap.Logger
}

var _ repositories.Transcriber = (*WhisperTranscriber)(nil)

// NewWhisperTranscriber creates a new Whisper transcriber instance
func NewWhisperTranscriber(logger *zap.Logger) (*WhisperTranscriber, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}

	return &WhisperTranscriber{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		logger: logger,
	}, nil
}

// Transcribe sends the audio to Whisper and returns the transcript text. The
// filename extension tells the API the container format.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(audio, filename, "application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}

	w.logger.Debug("transcription complete",
		zap.String("filename", filename),
		zap.Int("transcript_chars", len(resp.Text)))
	return resp.Text, nil
}
