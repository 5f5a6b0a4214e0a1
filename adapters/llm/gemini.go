package llm

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"lectura/domain/repositories"
)

// GeminiLLM implements the TextGenerator interface using Google's Gemini API
type GeminiLLM struct {
	client *genai.Client
	logger *zap.Logger
	model  string
}

var _ repositories.TextGenerator = (*GeminiLLM)(nil)

// NewGeminiLLM creates a new Gemini text generator instance
func NewGeminiLLM(logger *zap.Logger) (*GeminiLLM, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiLLM{
		client: client,
		logger: logger,
		model:  "gemini-2.0-flash",
	}, nil
}

// Generate runs a single system+user completion and returns the text.
func (g *GeminiLLM) Generate(ctx context.Context, system, user string, temperature float32) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), config)
	if err != nil {
		return "", fmt.Errorf("content generation failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("content generation returned no text")
	}

	g.logger.Debug("completion finished",
		zap.String("model", g.model),
		zap.Int("prompt_chars", len(system)+len(user)),
		zap.Int("response_chars", len(text)))
	return text, nil
}
