package tts

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/audio"
)

const (
	mockMsPerChar   = 5
	mockMaxDuration = 2 * time.Second
)

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth returns a synthesizer producing a WAV tone whose length follows
// the text and whose pitch follows the voice.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	duration := time.Duration(len(req.Text)*mockMsPerChar) * time.Millisecond
	if duration > mockMaxDuration {
		duration = mockMaxDuration
	}
	if duration < 50*time.Millisecond {
		duration = 50 * time.Millisecond
	}
	return audio.Tone(m.sampleRate, m.channels, duration, voicePitch(req.Voice))
}

func voicePitch(voice string) float64 {
	h := fnv.New32a()
	h.Write([]byte(voice))
	return 180 + float64(h.Sum32()%240)
}
