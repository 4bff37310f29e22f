package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-podcast/internal/audio"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	Voice2     string `json:"voice2,omitempty"`
	Model      string `json:"model,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// execResponse is one stdout line. Encoded audio arrives in audio_base64; raw
// signed 16-bit PCM in pcm_base64 is wrapped as WAV.
type execResponse struct {
	AudioBase64 string `json:"audio_base64"`
	PCMBase64   string `json:"pcm_base64"`
	Final       bool   `json:"final"`
}

func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      req.Voice,
		Voice2:     req.Voice2,
		Model:      req.Model,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tts exec command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var encoded, pcm []byte
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("decode tts exec response: %w", err)
		}
		if resp.AudioBase64 != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
			if err != nil {
				return nil, fmt.Errorf("decode audio payload: %w", err)
			}
			encoded = append(encoded, chunk...)
		}
		if resp.PCMBase64 != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
			if err != nil {
				return nil, fmt.Errorf("decode pcm payload: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.Final {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(encoded) > 0:
		return encoded, nil
	case len(pcm) > 0:
		return audio.PCM16ToWAV(pcm, e.sampleRate, e.channels)
	default:
		return nil, fmt.Errorf("tts exec command returned no audio")
	}
}
