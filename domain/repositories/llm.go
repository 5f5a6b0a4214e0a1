package repositories

import "context"

// TextGenerator abstracts a chat-style text generation service with a
// synchronous "submit text, get text back" contract.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string, temperature float32) (string, error)
}
