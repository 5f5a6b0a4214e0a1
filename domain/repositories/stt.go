package repositories

import (
	"context"
	"io"
)

// Transcriber abstracts a speech-to-text service with a synchronous
// "submit bytes, get text back" contract. The service enforces a maximum
// upload size; callers segment larger inputs.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}
