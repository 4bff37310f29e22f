// Package conversation loads the per-podcast conversation settings: names,
// style, roles, chunking and voices.
package conversation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/loqalabs/loqa-podcast/internal/format"
	"github.com/loqalabs/loqa-podcast/internal/synthesis"
	"github.com/loqalabs/loqa-podcast/internal/transcript"
)

// Config describes one podcast's conversation.
type Config struct {
	PodcastName          string                 `yaml:"podcast_name"`
	PodcastTagline       string                 `yaml:"podcast_tagline"`
	OutputLanguage       string                 `yaml:"output_language"`
	ConversationStyle    []string               `yaml:"conversation_style"`
	DialogueStructure    []string               `yaml:"dialogue_structure"`
	EngagementTechniques []string               `yaml:"engagement_techniques"`
	RolesPerson1         string                 `yaml:"roles_person1"`
	RolesPerson2         string                 `yaml:"roles_person2"`
	UserInstructions     string                 `yaml:"user_instructions,omitempty"`
	Creativity           float64                `yaml:"creativity"`
	Format               format.Format          `yaml:"format"`
	Longform             bool                   `yaml:"longform"`
	Chunking             transcript.ChunkConfig `yaml:"chunking"`
	Voices               synthesis.VoiceMap     `yaml:"voices"`
	EndingMessage        string                 `yaml:"ending_message,omitempty"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		PodcastName:          "Deep Dive",
		PodcastTagline:       "Your personal generated podcast",
		OutputLanguage:       "English",
		ConversationStyle:    []string{"engaging", "fast-paced", "enthusiastic"},
		DialogueStructure:    []string{"Introduction", "Main Content Summary", "Conclusion"},
		EngagementTechniques: []string{"rhetorical questions", "anecdotes", "analogies", "humor"},
		RolesPerson1:         "main summarizer",
		RolesPerson2:         "questioner/clarifier",
		Creativity:           1,
		Format:               format.Conversation,
		Chunking:             transcript.DefaultChunkConfig(),
		Voices:               synthesis.VoiceMap{Question: "echo", Answer: "shimmer"},
		EndingMessage:        "Bye Bye!",
	}
}

// Load reads a YAML file over Default. Unknown fields are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read conversation config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse conversation config: %w", err)
	}
	f, err := format.Parse(string(cfg.Format))
	if err != nil {
		return Config{}, err
	}
	cfg.Format = f
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures the fields every prompt needs are present.
func (c Config) Validate() error {
	if c.PodcastName == "" {
		return fmt.Errorf("podcast_name is required")
	}
	if c.PodcastTagline == "" {
		return fmt.Errorf("podcast_tagline is required")
	}
	if len(c.ConversationStyle) == 0 {
		return fmt.Errorf("conversation_style must include at least one entry")
	}
	if len(c.DialogueStructure) == 0 {
		return fmt.Errorf("dialogue_structure must include at least one entry")
	}
	if len(c.EngagementTechniques) == 0 {
		return fmt.Errorf("engagement_techniques must include at least one entry")
	}
	if _, err := format.Parse(string(c.Format)); err != nil {
		return err
	}
	if c.Creativity < 0 || c.Creativity > 2 {
		return fmt.Errorf("creativity must be between 0 and 2")
	}
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if c.Voices.Question == "" {
		return fmt.Errorf("voices.question is required")
	}
	if c.Format == format.Conversation && c.Voices.Answer == "" {
		return fmt.Errorf("voices.answer is required for conversation format")
	}
	return nil
}

// Params converts the settings into generation parameters.
func (c Config) Params() transcript.Params {
	p := transcript.Params{
		PodcastName:          c.PodcastName,
		PodcastTagline:       c.PodcastTagline,
		OutputLanguage:       c.OutputLanguage,
		ConversationStyle:    append([]string(nil), c.ConversationStyle...),
		DialogueStructure:    append([]string(nil), c.DialogueStructure...),
		EngagementTechniques: append([]string(nil), c.EngagementTechniques...),
		RolesPerson1:         c.RolesPerson1,
		RolesPerson2:         c.RolesPerson2,
		UserInstructions:     c.UserInstructions,
	}
	if c.EndingMessage != "" {
		p.UserInstructions = joinInstructions(p.UserInstructions, fmt.Sprintf("End the podcast with: %q", c.EndingMessage))
	}
	return p
}

func joinInstructions(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

// ChunkPreset names a long-form chunking preset.
type ChunkPreset string

const (
	PresetDefault ChunkPreset = "default"
	PresetMedium  ChunkPreset = "medium"
	PresetLong    ChunkPreset = "long"
)

var chunkPresets = map[ChunkPreset]transcript.ChunkConfig{
	PresetDefault: {MaxChunkCount: 7, MinChunkSize: 600},
	PresetMedium:  {MaxChunkCount: 10, MinChunkSize: 800},
	PresetLong:    {MaxChunkCount: 15, MinChunkSize: 1000},
}

// Chunking returns the chunk config of a preset.
func Chunking(preset ChunkPreset) (transcript.ChunkConfig, error) {
	cfg, ok := chunkPresets[preset]
	if !ok {
		return transcript.ChunkConfig{}, fmt.Errorf("unknown chunk preset %q", preset)
	}
	return cfg, nil
}

// Style is a predefined tone for a format.
type Style struct {
	ConversationStyle    []string
	EngagementTechniques []string
	RolesPerson1         string
	RolesPerson2         string
}

var styles = map[format.Format]map[string]Style{
	format.Conversation: {
		"engaging": {
			ConversationStyle:    []string{"Engaging", "Enthusiastic"},
			EngagementTechniques: []string{"Rhetorical Questions", "Personal Testimonials", "Humor"},
			RolesPerson1:         "Curious Host",
			RolesPerson2:         "Subject Matter Expert",
		},
		"educational": {
			ConversationStyle:    []string{"Educational", "Formal"},
			EngagementTechniques: []string{"Facts", "Historical Context", "Expert Opinions"},
			RolesPerson1:         "History Professor",
			RolesPerson2:         "Armchair Historian",
		},
		"casual": {
			ConversationStyle:    []string{"Casual", "Friendly"},
			EngagementTechniques: []string{"Humor", "Anecdotes", "Real-world Examples"},
			RolesPerson1:         "Enthusiast",
			RolesPerson2:         "Novice",
		},
		"analytical": {
			ConversationStyle:    []string{"Analytical", "Technical"},
			EngagementTechniques: []string{"Facts", "Case Studies", "Statistics"},
			RolesPerson1:         "Industry Analyst",
			RolesPerson2:         "Domain Expert",
		},
		"storytelling": {
			ConversationStyle:    []string{"Narrative", "Descriptive"},
			EngagementTechniques: []string{"Anecdotes", "Historical Context", "Personal Testimonials"},
			RolesPerson1:         "Storyteller",
			RolesPerson2:         "Historical Figure",
		},
		"debate": {
			ConversationStyle:    []string{"Critical", "Balanced"},
			EngagementTechniques: []string{"Rhetorical Questions", "Counter Arguments", "Expert Opinions"},
			RolesPerson1:         "Moderator",
			RolesPerson2:         "Expert Panelist",
		},
	},
	format.Monologue: {
		"narrative": {
			ConversationStyle:    []string{"Narrative", "Descriptive"},
			EngagementTechniques: []string{"Anecdotes", "Historical Context", "Personal Testimonials"},
			RolesPerson1:         "Narrator",
		},
		"educational": {
			ConversationStyle:    []string{"Educational", "Formal"},
			EngagementTechniques: []string{"Facts", "Expert Opinions", "Case Studies"},
			RolesPerson1:         "Narrator",
		},
		"analytical": {
			ConversationStyle:    []string{"Analytical", "Technical"},
			EngagementTechniques: []string{"Facts", "Statistics", "Expert Opinions"},
			RolesPerson1:         "Narrator",
		},
		"engaging": {
			ConversationStyle:    []string{"Engaging", "Enthusiastic"},
			EngagementTechniques: []string{"Rhetorical Questions", "Anecdotes", "Humor"},
			RolesPerson1:         "Narrator",
		},
		"storytelling": {
			ConversationStyle:    []string{"Narrative", "Descriptive", "Engaging"},
			EngagementTechniques: []string{"Anecdotes", "Historical Context", "Personal Testimonials", "Analogies"},
			RolesPerson1:         "Narrator",
		},
		"casual": {
			ConversationStyle:    []string{"Casual", "Friendly", "Conversational"},
			EngagementTechniques: []string{"Humor", "Anecdotes", "Real-world Examples", "Personal Testimonials"},
			RolesPerson1:         "Narrator",
		},
	},
}

// Styles lists the style names available for a format.
func Styles(f format.Format) []string {
	names := make([]string, 0, len(styles[f]))
	for name := range styles[f] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyStyle overwrites the tone fields of c with a predefined style of its
// format.
func (c Config) ApplyStyle(name string) (Config, error) {
	s, ok := styles[c.Format][name]
	if !ok {
		return Config{}, fmt.Errorf("unknown %s style %q", c.Format, name)
	}
	c.ConversationStyle = append([]string(nil), s.ConversationStyle...)
	c.EngagementTechniques = append([]string(nil), s.EngagementTechniques...)
	c.RolesPerson1 = s.RolesPerson1
	c.RolesPerson2 = s.RolesPerson2
	return c, nil
}
