// Package format holds the per-format prompt templates and speaker tags.
package format

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/loqalabs/loqa-podcast/internal/markup"
)

type Format string

const (
	Conversation Format = "conversation"
	Monologue    Format = "monologue"
)

// Parse validates a format name.
func Parse(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case Conversation, Monologue:
		return f, nil
	case "":
		return Conversation, nil
	default:
		return "", fmt.Errorf("unsupported format %q (supported: conversation, monologue)", name)
	}
}

// RequiredParams must be present in the prompt parameters of every format.
var RequiredParams = []string{
	"conversation_style",
	"dialogue_structure",
	"engagement_techniques",
	"podcast_name",
	"podcast_tagline",
}

// Template describes how a format is prompted and cleaned.
type Template struct {
	format       Format
	tags         []string
	prompt       string
	longform     string
	cleaner      *markup.Cleaner
	preprocessor func(string) string
}

// ForFormat returns the template for f.
func ForFormat(f Format, logger *slog.Logger) (*Template, error) {
	cleaner := markup.NewCleaner(logger)
	switch f {
	case Conversation:
		return &Template{
			format:   Conversation,
			tags:     []string{"Person1", "Person2"},
			prompt:   conversationPrompt,
			longform: conversationLongform,
			cleaner:  cleaner,
		}, nil
	case Monologue:
		return &Template{
			format:       Monologue,
			tags:         []string{"Speaker"},
			prompt:       monologuePrompt,
			longform:     monologueLongform,
			cleaner:      cleaner,
			preprocessor: convertConversationTags,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

func (t *Template) Format() Format { return t.format }

// SupportedTags returns a copy of the speaker tags for this format.
func (t *Template) SupportedTags() []string { return append([]string{}, t.tags...) }

func (t *Template) Prompt() string { return t.prompt }

func (t *Template) LongformInstructions() string { return t.longform }

// Clean normalizes generated markup to this format's tags.
func (t *Template) Clean(text string) string {
	if t.preprocessor != nil {
		text = t.preprocessor(text)
	}
	return t.cleaner.Clean(text, t.tags)
}

// ValidateParams reports the required parameters missing from params.
func ValidateParams(params map[string]string) error {
	var missing []string
	for _, key := range RequiredParams {
		if strings.TrimSpace(params[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

var (
	bracketAside     = regexp.MustCompile(`\[.*?\]`)
	parentheticAside = regexp.MustCompile(`\(.*?\)`)
	personTag        = regexp.MustCompile(`<(/?)Person[12]>`)
)

func convertConversationTags(text string) string {
	text = personTag.ReplaceAllString(text, "<${1}Speaker>")
	text = bracketAside.ReplaceAllString(text, "")
	return parentheticAside.ReplaceAllString(text, "")
}
