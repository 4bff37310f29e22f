// Package synthesis plans transcript text into synthesis requests and merges
// the resulting audio.
package synthesis

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/loqalabs/loqa-podcast/internal/markup"
)

const (
	// DefaultMultiSpeakerBudget bounds one multi-speaker request in bytes.
	DefaultMultiSpeakerBudget = 1300
	// DefaultSingleSpeakerBudget bounds one single-speaker request in bytes.
	DefaultSingleSpeakerBudget = 5000
	// DefaultTurnChars bounds one per-turn request in characters.
	DefaultTurnChars = 500
)

var sentenceEnd = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// Fragment is one unit of text sent to the synthesizer. An empty Speaker marks
// tagged multi-speaker text.
type Fragment struct {
	Index   int
	Speaker string
	Text    string
}

// SplitTurnText splits the text of a single turn into pieces of at most
// maxChars characters, breaking at sentence ends and falling back to word
// boundaries for sentences that are too long on their own. A single word
// longer than maxChars is kept whole.
func SplitTurnText(text string, maxChars int) []string {
	return splitText(text, maxChars, utf8.RuneCountInString)
}

// PlanTurns turns speaker turns into per-turn fragments no longer than
// maxChars characters, preserving order and speaker attribution.
func PlanTurns(turns []markup.Turn, maxChars int) []Fragment {
	var out []Fragment
	for _, turn := range turns {
		for _, piece := range SplitTurnText(turn.Text, maxChars) {
			if piece == "" {
				continue
			}
			out = append(out, Fragment{Index: len(out), Speaker: turn.Speaker, Text: piece})
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, text[last:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

func splitText(text string, limit int, size func(string) int) []string {
	text = strings.TrimSpace(text)
	if limit <= 0 || size(text) <= limit {
		return []string{text}
	}

	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for _, sentence := range splitSentences(text) {
		if size(cur.String())+size(sentence) <= limit {
			cur.WriteString(sentence)
			continue
		}
		flush()
		if size(strings.TrimSpace(sentence)) <= limit {
			cur.WriteString(sentence)
			continue
		}
		words := strings.Fields(sentence)
		for _, word := range words {
			if cur.Len() > 0 && size(cur.String())+1+size(word) > limit {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(word)
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
	}
	flush()
	return out
}
