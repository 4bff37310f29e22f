package transcript

import (
	"context"
	"strings"
)

// Params are the named fields handed to a generation backend for one call.
type Params struct {
	PodcastName          string
	PodcastTagline       string
	OutputLanguage       string
	ConversationStyle    []string
	DialogueStructure    []string
	EngagementTechniques []string
	RolesPerson1         string
	RolesPerson2         string
	UserInstructions     string

	Context     string
	Instruction string
	InputText   string
}

// Generator turns prompt parameters into generated text.
type Generator interface {
	Generate(ctx context.Context, params Params) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, params Params) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, params Params) (string, error) {
	return f(ctx, params)
}

// Map flattens the parameters into the named-field mapping used by prompt
// templates and the exec backend.
func (p Params) Map() map[string]string {
	return map[string]string{
		"podcast_name":          p.PodcastName,
		"podcast_tagline":       p.PodcastTagline,
		"output_language":       p.OutputLanguage,
		"conversation_style":    strings.Join(p.ConversationStyle, ", "),
		"dialogue_structure":    strings.Join(p.DialogueStructure, ", "),
		"engagement_techniques": strings.Join(p.EngagementTechniques, ", "),
		"roles_person1":         p.RolesPerson1,
		"roles_person2":         p.RolesPerson2,
		"user_instructions":     p.UserInstructions,
		"context":               p.Context,
		"instruction":           p.Instruction,
		"input_text":            p.InputText,
	}
}

// with returns a copy carrying the per-chunk fields.
func (p Params) with(carried, instruction, input string) Params {
	p.ConversationStyle = append([]string(nil), p.ConversationStyle...)
	p.DialogueStructure = append([]string(nil), p.DialogueStructure...)
	p.EngagementTechniques = append([]string(nil), p.EngagementTechniques...)
	p.Context = carried
	p.Instruction = instruction
	p.InputText = input
	return p
}
