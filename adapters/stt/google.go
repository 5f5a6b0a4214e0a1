package stt

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"lectura/domain/repositories"
)

// GoogleTranscriber implements the Transcriber interface using Google Cloud
// Speech-to-Text batch recognition. It transcribes capture-format audio
// (WebM/Ogg Opus) directly, without the intermediate MP3 conversion the
// Whisper backend needs.
type GoogleTranscriber struct {
	logger     *zap.Logger
	language   string
	sampleRate int
}

var _ repositories.Transcriber = (*GoogleTranscriber)(nil)

// NewGoogleTranscriber creates a Google Cloud transcriber. Credentials come
// from the standard GOOGLE_APPLICATION_CREDENTIALS environment.
func NewGoogleTranscriber(logger *zap.Logger) *GoogleTranscriber {
	return &GoogleTranscriber{
		logger:     logger,
		language:   "en-US",
		sampleRate: 48000,
	}
}

// Transcribe runs batch recognition over the audio and joins the final
// alternatives into one transcript.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	encoding, err := encodingForFilename(filename)
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create speech client: %w", err)
	}
	defer client.Close()

	op, err := client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: int32(g.sampleRate),
			LanguageCode:    g.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to start recognition: %w", err)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}

	var parts []string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			parts = append(parts, result.Alternatives[0].Transcript)
		}
	}
	transcript := strings.Join(parts, " ")

	g.logger.Debug("transcription complete",
		zap.String("filename", filename),
		zap.Int("transcript_chars", len(transcript)))
	return transcript, nil
}

// encodingForFilename maps a container extension to the recognition encoding.
func encodingForFilename(filename string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	case ".ogg":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case ".flac":
		return speechpb.RecognitionConfig_FLAC, nil
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
			fmt.Errorf("unsupported audio container: %s", filename)
	}
}
