// Package llm provides text generation backends for topic analysis,
// transcript cleanup, and note generation. GPT-4o is the default; the Gemini
// backend is selected with LECTURA_LLM_PROVIDER=gemini.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"lectura/domain/repositories"
)

// OpenAILLM implements the TextGenerator interface using OpenAI chat
// completions.
type OpenAILLM struct {
	client openai.Client
	logger *zap.Logger
	model  openai.ChatModel
}

var _ repositories.TextGenerator = (*OpenAILLM)(nil)

// NewOpenAILLM creates a new OpenAI text generator instance
func NewOpenAILLM(logger *zap.Logger) (*OpenAILLM, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}

	return &OpenAILLM{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		logger: logger,
		model:  openai.ChatModelGPT4o,
	}, nil
}

// Generate runs a single system+user completion and returns the text.
func (o *OpenAILLM) Generate(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(float64(temperature)),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	text := resp.Choices[0].Message.Content
	o.logger.Debug("completion finished",
		zap.String("model", string(o.model)),
		zap.Int("prompt_chars", len(system)+len(user)),
		zap.Int("response_chars", len(text)))
	return text, nil
}
