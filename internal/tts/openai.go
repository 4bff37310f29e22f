package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAISpeechModel = "tts-1-hd"
	defaultOpenAIVoice       = "echo"
)

type openAISynth struct {
	model  string
	format openai.AudioSpeechNewParamsResponseFormat
	opts   []option.RequestOption
}

// NewOpenAISynth voices single-speaker text through the audio speech API.
// Requests with Voice2 set fail with ErrMultiSpeaker.
func NewOpenAISynth(apiKey, baseURL, model, container string) Synthesizer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultOpenAISpeechModel
	}
	format := openai.AudioSpeechNewParamsResponseFormatMP3
	if container == "wav" {
		format = openai.AudioSpeechNewParamsResponseFormatWAV
	}
	return &openAISynth{model: model, format: format, opts: opts}
}

func (s *openAISynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	if req.Voice2 != "" {
		return nil, ErrMultiSpeaker
	}
	client := openai.NewClient(s.opts...)

	model := s.model
	if req.Model != "" {
		model = req.Model
	}
	voice := req.Voice
	if voice == "" {
		voice = defaultOpenAIVoice
	}
	resp, err := client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          openai.SpeechModel(model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: s.format,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai speech: %w", err)
	}
	return data, nil
}
