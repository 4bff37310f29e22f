// Package llm provides the text generation backends used to write transcripts.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

// Request describes a language model prompt.
type Request struct {
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
	TraceID     string
	// Params carries the podcast parameters behind Prompt and System, keyed
	// by name. Only the exec backend forwards them.
	Params map[string]string
}

// Chunk represents streamed model output.
type Chunk struct {
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	TraceID          string
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// OptionsFromConfig builds request defaults from config.
func OptionsFromConfig(cfg config.LLMConfig) Request {
	return Request{Model: cfg.Model, MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
}

// Collect runs req against g and returns the concatenated output.
func Collect(ctx context.Context, g Generator, req Request) (string, error) {
	var b strings.Builder
	err := g.Generate(ctx, req, func(chunk Chunk) error {
		b.WriteString(chunk.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// New builds the generator selected by cfg.Mode.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "openai":
		return NewOpenAIGenerator(cfg.APIKey, cfg.Endpoint, cfg.Model), nil
	case "gemini":
		return NewGeminiGenerator(ctx, cfg.APIKey, cfg.Endpoint, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}
