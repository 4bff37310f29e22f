package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct{}

// NewMockGenerator returns a generator that answers every prompt with a short
// two-speaker exchange about the last line of the prompt.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	topic := strings.TrimSpace(req.Prompt)
	if idx := strings.LastIndex(topic, "\n"); idx >= 0 {
		topic = strings.TrimSpace(topic[idx+1:])
	}
	if len(topic) > 80 {
		topic = topic[:80]
	}
	content := "<Person1>What stands out in " + topic + "?</Person1>\n" +
		"<Person2>The key points are worth walking through.</Person2>"
	return consumer(Chunk{
		Content: content,
		Partial: false,
		Latency: 20 * time.Millisecond,
		TraceID: req.TraceID,
	})
}
