package transcript

import (
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-podcast/internal/format"
	"github.com/loqalabs/loqa-podcast/internal/markup"
)

// Stage is the position-dependent role of a chunk in a long-form run.
type Stage int

const (
	StageIntro Stage = iota
	StageBody
	StageClosing
	StageComplete // single-chunk run: intro and closing in one part
)

func (s Stage) String() string {
	switch s {
	case StageIntro:
		return "intro"
	case StageBody:
		return "body"
	case StageClosing:
		return "closing"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// StageFor returns the stage of chunk i out of n.
func StageFor(i, n int) Stage {
	switch {
	case n <= 1:
		return StageComplete
	case i == 0:
		return StageIntro
	case i == n-1:
		return StageClosing
	default:
		return StageBody
	}
}

// NextSpeaker picks the tag that must open the next part: the first supported
// tag other than the last one present in carried. With no speaker in carried
// the first tag opens.
func NextSpeaker(carried string, tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	last := markup.LastSpeaker(carried, tags)
	for _, tag := range tags {
		if tag != last {
			return tag
		}
	}
	return tags[0]
}

const previewLength = 200

func buildInstruction(tmpl *format.Template, base Params, i, n int, carried, chunk string) string {
	stage := StageFor(i, n)

	var rules strings.Builder
	switch stage {
	case StageIntro:
		fmt.Fprintf(&rules, "1. Open with: Welcome to %s - %s.\n", base.PodcastName, base.PodcastTagline)
		rules.WriteString("2. Introduce the topic only. Do not cover the details of the content yet.\n")
		rules.WriteString("3. End with an open-ended question or statement that leads into the next topic.\n")
		rules.WriteString("4. DO NOT end with any closing remarks, farewells or thank yous.\n")
	case StageBody:
		rules.WriteString("1. Continue the conversation exactly where the previous context left off.\n")
		rules.WriteString("2. Respond directly to the last points made.\n")
		rules.WriteString("3. End with an open-ended question or statement that leads into the next topic.\n")
		rules.WriteString("4. DO NOT introduce yourself or the podcast, say farewell, or add meta-commentary or transitional phrases like \"moving on\".\n")
	case StageClosing:
		rules.WriteString("1. Continue the previous discussion naturally and cover the content of this final section.\n")
		rules.WriteString("2. DO NOT re-introduce yourself or the podcast.\n")
		rules.WriteString("3. Finish with a closing remark and a brief farewell thanking the listeners.\n")
	case StageComplete:
		fmt.Fprintf(&rules, "1. Open with: Welcome to %s - %s.\n", base.PodcastName, base.PodcastTagline)
		rules.WriteString("2. Cover the content.\n")
		rules.WriteString("3. Finish with a closing remark and a brief farewell thanking the listeners.\n")
	}
	if i > 0 && tmpl.Format() == format.Conversation {
		speaker := NextSpeaker(carried, tmpl.SupportedTags())
		fmt.Fprintf(&rules, "- The first line of this part MUST be spoken by <%s>.\n", speaker)
	}

	previous := carried
	if previous == "" {
		previous = "No previous context - this is the start"
	}

	var b strings.Builder
	b.WriteString(tmpl.LongformInstructions())
	fmt.Fprintf(&b, "\n\nIMPORTANT: You are generating part %d of %d.\n\n", i+1, n)
	fmt.Fprintf(&b, "Previous context: %s\n\n", previous)
	fmt.Fprintf(&b, "Rules for this part:\n%s\n", rules.String())
	b.WriteString("Additional Rules:\n")
	b.WriteString("1. Use the previous context to maintain the flow.\n")
	b.WriteString("2. Each line must respond to what was said before it.\n")
	b.WriteString("3. NO meta-commentary about parts or segments.\n")
	fmt.Fprintf(&b, "4. ONLY discuss the content from this section: %s...\n", preview(chunk, previewLength))
	return b.String()
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
