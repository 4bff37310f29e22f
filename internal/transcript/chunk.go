package transcript

import (
	"errors"
	"fmt"
	"strings"
)

// sentenceSeparator is the boundary content is split on.
const sentenceSeparator = ". "

var ErrInvalidChunkConfig = errors.New("invalid chunk config")

// ChunkConfig bounds how source content is split for long-form generation.
type ChunkConfig struct {
	MaxChunkCount int `yaml:"max_num_chunks"`
	MinChunkSize  int `yaml:"min_chunk_size"`
}

// DefaultChunkConfig matches the "default" preset.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{MaxChunkCount: 7, MinChunkSize: 600}
}

func (c ChunkConfig) Validate() error {
	if c.MaxChunkCount <= 0 {
		return fmt.Errorf("%w: max_num_chunks must be positive", ErrInvalidChunkConfig)
	}
	if c.MinChunkSize <= 0 {
		return fmt.Errorf("%w: min_chunk_size must be positive", ErrInvalidChunkConfig)
	}
	return nil
}

// ContentChunk is one ordered piece of the source text.
type ContentChunk struct {
	Index int
	Total int
	Text  string
}

// TargetChunkSize picks the chunk size for a text of length n. The size never
// drops below MinChunkSize unless the whole text is shorter than that.
func TargetChunkSize(n int, cfg ChunkConfig) int {
	if n <= cfg.MinChunkSize {
		return n
	}
	if size := n / cfg.MaxChunkCount; size >= cfg.MinChunkSize {
		return size
	}
	return n / (n / cfg.MinChunkSize)
}

// ChunkContent splits text at ". " boundaries, greedily packing sentences
// while the chunk stays within the target size. Sentences are never split, so
// a single sentence longer than the target becomes its own oversized chunk.
// Every chunk but the last is terminated with the period consumed by the split,
// so joining the chunk texts with a single space yields text again.
func ChunkContent(text string, cfg ChunkConfig) []ContentChunk {
	target := TargetChunkSize(len(text), cfg)
	sentences := strings.Split(text, sentenceSeparator)

	var groups []string
	var current strings.Builder
	started := false
	for _, sentence := range sentences {
		if started && sentence != "" && current.Len()+len(sentenceSeparator)+len(sentence) > target {
			groups = append(groups, current.String())
			current.Reset()
			started = false
		}
		if started {
			current.WriteString(sentenceSeparator)
		}
		current.WriteString(sentence)
		started = true
	}
	groups = append(groups, current.String())

	chunks := make([]ContentChunk, len(groups))
	for i, g := range groups {
		if i < len(groups)-1 {
			g += "."
		}
		chunks[i] = ContentChunk{Index: i, Total: len(groups), Text: g}
	}
	return chunks
}
