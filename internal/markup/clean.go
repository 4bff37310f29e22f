package markup

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// CommonTags are SSML-style tags that survive cleaning regardless of format.
var CommonTags = []string{"speak", "lang", "p", "phoneme", "s", "sub"}

// maxCleanRounds bounds how often the passes are re-applied while the output still changes.
const maxCleanRounds = 32

var (
	noisePattern      = regexp.MustCompile("(?s)```scratchpad\\n.*?```\\n?|```plaintext\\n.*?```\\n?|```\\n?|\\[.*?\\]")
	underscorePattern = regexp.MustCompile(`_(.*?)_`)
	anyTagPattern     = regexp.MustCompile(`</?([^>]+)>`)
	blankLinePattern  = regexp.MustCompile(`\n\s*\n`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Cleaner repairs speaker markup produced by a generation model.
type Cleaner struct {
	logger *slog.Logger
}

func NewCleaner(logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cleaner{logger: logger.With(slog.String("component", "markup"))}
}

// Clean strips noise, drops tags outside supportedTags and CommonTags, closes
// dangling speaker tags and merges accidental same-speaker splits. A pass that
// fails returns its input unchanged.
func (c *Cleaner) Clean(text string, supportedTags []string) string {
	out := text
	for i := 0; i < maxCleanRounds; i++ {
		next := c.cleanOnce(out, supportedTags)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func (c *Cleaner) cleanOnce(text string, tags []string) string {
	text = c.pass("strip_noise", text, func(s string) (string, error) { return stripNoise(s, tags) })
	text = c.pass("allowlist_tags", text, func(s string) (string, error) { return allowlistTags(s, tags) })
	text = c.pass("repair_tags", text, func(s string) (string, error) { return repairTags(s, tags) })
	return text
}

func (c *Cleaner) pass(name, input string, fn func(string) (string, error)) (out string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("markup pass panicked", slog.String("pass", name), slog.String("error", fmt.Sprint(r)))
			out = input
		}
	}()
	cleaned, err := fn(input)
	if err != nil {
		c.logger.Warn("markup pass failed", slog.String("pass", name), slog.String("error", err.Error()))
		return input
	}
	return cleaned
}

func stripNoise(text string, tags []string) (string, error) {
	cleaned := noisePattern.ReplaceAllString(text, "")
	if len(tags) > 0 {
		stray, err := regexp.Compile(`(?:xml\s*)+(\s*</(?:` + alternation(tags) + `)>)`)
		if err != nil {
			return "", fmt.Errorf("compile stray marker pattern: %w", err)
		}
		cleaned = stray.ReplaceAllString(cleaned, "$1")
	}
	cleaned = underscorePattern.ReplaceAllString(cleaned, "$1")
	return strings.TrimSpace(cleaned), nil
}

func allowlistTags(text string, tags []string) (string, error) {
	allowed := append(append([]string{}, CommonTags...), tags...)
	cleaned := anyTagPattern.ReplaceAllStringFunc(text, func(tag string) string {
		name := strings.TrimPrefix(strings.TrimSuffix(strings.TrimPrefix(tag, "<"), ">"), "/")
		if hasAllowedName(name, allowed) {
			return tag
		}
		return ""
	})
	cleaned = blankLinePattern.ReplaceAllString(cleaned, "\n")
	cleaned = strings.ReplaceAll(cleaned, "*", "")
	cleaned = closeDanglingTags(cleaned, tags)
	return strings.TrimSpace(cleaned), nil
}

// hasAllowedName reports whether body starts with an allowed tag name followed
// by a non-word character or the end of the tag.
func hasAllowedName(body string, allowed []string) bool {
	for _, name := range allowed {
		if !strings.HasPrefix(body, name) {
			continue
		}
		if len(body) == len(name) || !isWordByte(body[len(name)]) {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// closeDanglingTags inserts a closing tag for every supported tag whose content
// reaches the next supported opening tag (or end of text) without one.
func closeDanglingTags(text string, tags []string) string {
	opens := findOpenings(text, tags)
	if len(opens) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 16)
	last := 0
	for i, open := range opens {
		end := len(text)
		if i+1 < len(opens) {
			end = opens[i+1].start
		}
		contentStart := open.start + len(open.tag) + 2
		segment := text[contentStart:end]
		closeTag := "</" + open.tag + ">"
		if strings.Contains(segment, closeTag) {
			continue
		}
		trimmed := strings.TrimRight(segment, " \t\r\n")
		b.WriteString(text[last : contentStart+len(trimmed)])
		b.WriteString(closeTag)
		last = contentStart + len(trimmed)
	}
	b.WriteString(text[last:])
	return b.String()
}

type opening struct {
	tag   string
	start int
}

func findOpenings(text string, tags []string) []opening {
	var opens []opening
	for i := 0; i < len(text); i++ {
		if text[i] != '<' {
			continue
		}
		for _, tag := range tags {
			if strings.HasPrefix(text[i+1:], tag+">") {
				opens = append(opens, opening{tag: tag, start: i})
				break
			}
		}
	}
	return opens
}

func repairTags(text string, tags []string) (string, error) {
	for _, tag := range tags {
		q := regexp.QuoteMeta(tag)
		merge, err := regexp.Compile(`</` + q + `>\s*<` + q + `>`)
		if err != nil {
			return "", fmt.Errorf("compile merge pattern for %s: %w", tag, err)
		}
		text = merge.ReplaceAllString(text, " ")
	}
	text = whitespacePattern.ReplaceAllString(text, " ")
	for _, tag := range tags {
		q := regexp.QuoteMeta(tag)
		open, closeTag := "<"+tag+">", "</"+tag+">"
		text = strings.ReplaceAll(text, open+" ", open)
		text = strings.ReplaceAll(text, " "+closeTag, closeTag)

		after, err := regexp.Compile(`</` + q + `>([^\s])`)
		if err != nil {
			return "", fmt.Errorf("compile spacing pattern for %s: %w", tag, err)
		}
		text = after.ReplaceAllString(text, closeTag+" ${1}")
		before, err := regexp.Compile(`([^>\s])(<` + q + `>)`)
		if err != nil {
			return "", fmt.Errorf("compile spacing pattern for %s: %w", tag, err)
		}
		text = before.ReplaceAllString(text, "${1} ${2}")
	}
	return strings.TrimSpace(text), nil
}

func alternation(tags []string) string {
	quoted := make([]string, len(tags))
	for i, tag := range tags {
		quoted[i] = regexp.QuoteMeta(tag)
	}
	return strings.Join(quoted, "|")
}
