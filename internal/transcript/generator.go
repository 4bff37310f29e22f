package transcript

import (
	"context"
	"strings"

	"github.com/loqalabs/loqa-podcast/internal/format"
	"github.com/loqalabs/loqa-podcast/internal/llm"
)

// LLMGenerator renders Params into a system/user prompt pair and runs it
// against an llm backend.
type LLMGenerator struct {
	backend  llm.Generator
	tmpl     *format.Template
	defaults llm.Request
}

func NewLLMGenerator(backend llm.Generator, tmpl *format.Template, defaults llm.Request) *LLMGenerator {
	return &LLMGenerator{backend: backend, tmpl: tmpl, defaults: defaults}
}

func (g *LLMGenerator) Generate(ctx context.Context, params Params) (string, error) {
	req := g.defaults
	req.System = SystemPrompt(g.tmpl, params)
	req.Prompt = UserPrompt(g.tmpl.Format(), params.InputText)
	req.Params = params.Map()
	return llm.Collect(ctx, g.backend, req)
}

// SystemPrompt renders the podcast persona, style guidelines and any per-call
// instruction on top of the format requirements.
func SystemPrompt(tmpl *format.Template, p Params) string {
	var b strings.Builder
	b.WriteString("You are an expert podcast script writer for ")
	b.WriteString(p.PodcastName)
	if p.PodcastTagline != "" {
		b.WriteString(" - ")
		b.WriteString(p.PodcastTagline)
	}
	b.WriteString(".\n\n")
	b.WriteString(tmpl.Prompt())
	b.WriteString("\n\nStyle Guidelines:\n")
	writeGuideline(&b, "Conversation style", strings.Join(p.ConversationStyle, ", "))
	writeGuideline(&b, "Structure", strings.Join(p.DialogueStructure, ", "))
	writeGuideline(&b, "Engagement techniques", strings.Join(p.EngagementTechniques, ", "))
	if tmpl.Format() == format.Conversation {
		writeGuideline(&b, "Person1 role", p.RolesPerson1)
		writeGuideline(&b, "Person2 role", p.RolesPerson2)
	}
	writeGuideline(&b, "Output language", p.OutputLanguage)
	if p.UserInstructions != "" {
		b.WriteString("\nAdditional instructions:\n")
		b.WriteString(p.UserInstructions)
		b.WriteString("\n")
	}
	if p.Instruction != "" {
		b.WriteString("\n")
		b.WriteString(p.Instruction)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func writeGuideline(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString("- ")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

// UserPrompt wraps the input text for the given format.
func UserPrompt(f format.Format, input string) string {
	if f == format.Monologue {
		return "Please analyze this input and generate a monologue. " + input
	}
	return "Please analyze this input and generate a conversation. " + input
}
