package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-pro-latest"

type geminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator talks to the Gemini API, or to baseURL when set.
func NewGeminiGenerator(ctx context.Context, apiKey, baseURL, model string) (Generator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key missing")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiGenerator{client: client, model: model}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	model := g.model
	if req.Model != "" {
		model = req.Model
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	started := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return fmt.Errorf("gemini generate content: %w", err)
	}
	chunk := Chunk{
		Content: resp.Text(),
		Partial: false,
		Latency: time.Since(started),
		TraceID: req.TraceID,
	}
	if usage := resp.UsageMetadata; usage != nil {
		chunk.PromptTokens = int(usage.PromptTokenCount)
		chunk.CompletionTokens = int(usage.CandidatesTokenCount)
	}
	return consumer(chunk)
}
