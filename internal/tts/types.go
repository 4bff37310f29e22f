// Package tts provides the speech synthesis backends used to voice transcripts.
package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

// SynthRequest contains parameters to synthesize speech. Voice2 is set for
// multi-speaker text carrying both speakers' tags.
type SynthRequest struct {
	Text   string
	Voice  string
	Voice2 string
	Model  string
}

// ErrMultiSpeaker is returned by single-voice backends handed a request for
// two speakers.
var ErrMultiSpeaker = errors.New("backend voices a single speaker per request")

// Synthesizer is the contract for producing one encoded audio fragment.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) ([]byte, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, req SynthRequest) ([]byte, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	return f(ctx, req)
}

// New builds the synthesizer selected by cfg.Mode. container is the format the
// audio codec expects fragments in ("wav" or "mp3").
func New(cfg config.TTSConfig, container string) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	case "openai":
		return NewOpenAISynth(cfg.APIKey, cfg.Endpoint, cfg.Model, container), nil
	case "elevenlabs":
		return NewElevenLabsSynth(cfg.APIKey, cfg.Endpoint, cfg.Model, container), nil
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}
