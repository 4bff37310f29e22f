package synthesis

import (
	"strings"

	"github.com/loqalabs/loqa-podcast/internal/markup"
)

// Chunk is a run of whole tagged sections whose rebuilt markup fits the byte
// budget of one multi-speaker request.
type Chunk struct {
	Index   int
	Speaker string // first speaker in the chunk
	Text    string
	Turns   []markup.Turn
}

// Fragment returns the chunk as synthesizer input. Chunks spanning more than
// one speaker carry an empty Speaker.
func (c Chunk) Fragment() Fragment {
	speaker := c.Speaker
	for _, t := range c.Turns {
		if t.Speaker != speaker {
			speaker = ""
			break
		}
	}
	return Fragment{Index: c.Index, Speaker: speaker, Text: c.Text}
}

// DefaultByteBudget picks the request budget for the number of speaker tags.
func DefaultByteBudget(tags []string) int {
	if len(tags) > 1 {
		return DefaultMultiSpeakerBudget
	}
	return DefaultSingleSpeakerBudget
}

func section(tag, text string) string {
	return "<" + tag + ">" + text + "</" + tag + ">"
}

// ChunkTranscript packs the tagged sections of transcript into chunks whose
// UTF-8 size never exceeds byteBudget. Sections are kept whole where they fit;
// a section that alone exceeds the budget is split at sentence and then word
// boundaries into several sections of the same speaker.
func ChunkTranscript(transcript string, tags []string, byteBudget int) []Chunk {
	if byteBudget <= 0 {
		byteBudget = DefaultByteBudget(tags)
	}

	var units []markup.Turn
	for _, turn := range markup.ExtractTurns(transcript, tags) {
		if turn.Text == "" {
			continue
		}
		if len(section(turn.Speaker, turn.Text)) <= byteBudget {
			units = append(units, turn)
			continue
		}
		limit := byteBudget - len(section(turn.Speaker, ""))
		for _, piece := range splitText(turn.Text, limit, func(s string) int { return len(s) }) {
			units = append(units, markup.Turn{Speaker: turn.Speaker, Text: piece})
		}
	}

	var chunks []Chunk
	var cur strings.Builder
	var turns []markup.Turn
	flush := func() {
		if len(turns) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Speaker: turns[0].Speaker,
			Text:    cur.String(),
			Turns:   turns,
		})
		cur.Reset()
		turns = nil
	}
	for _, unit := range units {
		s := section(unit.Speaker, unit.Text)
		if len(turns) > 0 && cur.Len()+len(s) > byteBudget {
			flush()
		}
		cur.WriteString(s)
		turns = append(turns, unit)
	}
	flush()
	return chunks
}
