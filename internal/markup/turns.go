package markup

import (
	"regexp"
	"strings"
)

// Turn is one speaker's contiguous span of text.
type Turn struct {
	Speaker string
	Text    string
}

// Pair groups a question turn with the answer that follows it. Monologue
// transcripts produce pairs with an empty Answer.
type Pair struct {
	Question string
	Answer   string
}

// ExtractTurns returns every <Tag>…</Tag> section of transcript, in document
// order, for the given speaker tags. Alternation is not enforced.
func ExtractTurns(transcript string, tags []string) []Turn {
	if len(tags) == 0 {
		return nil
	}
	pattern, err := sectionPattern(tags)
	if err != nil {
		return nil
	}
	var turns []Turn
	for _, m := range pattern.FindAllStringSubmatch(transcript, -1) {
		speaker, body := matchedSection(m, len(tags))
		if speaker == "" {
			continue
		}
		turns = append(turns, Turn{Speaker: speaker, Text: strings.TrimSpace(body)})
	}
	return turns
}

// sectionPattern builds one alternation group per tag since RE2 has no
// backreferences to tie an opening tag to its closing twin.
func sectionPattern(tags []string) (*regexp.Regexp, error) {
	parts := make([]string, len(tags))
	for i, tag := range tags {
		q := regexp.QuoteMeta(tag)
		parts[i] = `<(` + q + `)>(.*?)</` + q + `>`
	}
	return regexp.Compile(`(?s)` + strings.Join(parts, "|"))
}

func matchedSection(m []string, groups int) (string, string) {
	for i := 0; i < groups; i++ {
		if name := m[1+2*i]; name != "" {
			return name, m[2+2*i]
		}
	}
	return "", ""
}

// Alternates returns the indexes of turns that repeat the previous speaker.
func Alternates(turns []Turn) []int {
	var violations []int
	for i := 1; i < len(turns); i++ {
		if turns[i].Speaker == turns[i-1].Speaker {
			violations = append(violations, i)
		}
	}
	return violations
}

// Pairs groups turns as question/answer couples: a turn by the first tag opens
// a pair, a turn by any other tag answers it. With a single tag every turn is
// its own pair.
func Pairs(turns []Turn, tags []string) []Pair {
	if len(tags) == 0 {
		return nil
	}
	first := tags[0]
	var pairs []Pair
	for _, turn := range turns {
		if len(tags) == 1 || turn.Speaker == first {
			pairs = append(pairs, Pair{Question: turn.Text})
			continue
		}
		if len(pairs) == 0 || pairs[len(pairs)-1].Answer != "" {
			pairs = append(pairs, Pair{})
		}
		pairs[len(pairs)-1].Answer = turn.Text
	}
	return pairs
}

// LastSpeaker returns the last supported opening tag found in text, or "".
func LastSpeaker(text string, tags []string) string {
	opens := findOpenings(text, tags)
	if len(opens) == 0 {
		return ""
	}
	return opens[len(opens)-1].tag
}
