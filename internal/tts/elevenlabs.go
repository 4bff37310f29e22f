package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-podcast/internal/audio"
)

const (
	elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"
	elevenLabsDefaultModel  = "eleven_multilingual_v2"
	elevenLabsPCMRate       = 24000
	elevenLabsWriteTimeout  = 5 * time.Second
)

type elevenLabsSynth struct {
	apiKey    string
	wsBaseURL string
	model     string
	wav       bool
}

// NewElevenLabsSynth streams text over the stream-input websocket API. When
// container is "wav" the service is asked for PCM which is wrapped locally.
func NewElevenLabsSynth(apiKey, wsBaseURL, model, container string) Synthesizer {
	if wsBaseURL == "" {
		wsBaseURL = elevenLabsDefaultWSBase
	}
	if model == "" {
		model = elevenLabsDefaultModel
	}
	return &elevenLabsSynth{
		apiKey:    strings.TrimSpace(apiKey),
		wsBaseURL: wsBaseURL,
		model:     model,
		wav:       container == "wav",
	}
}

type elevenLabsMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *elevenLabsSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	if s.apiKey == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	if req.Voice2 != "" {
		return nil, ErrMultiSpeaker
	}
	voiceID := strings.TrimSpace(req.Voice)
	if voiceID == "" {
		return nil, errors.New("voice id is required")
	}
	model := s.model
	if req.Model != "" {
		model = req.Model
	}
	wsURL, err := s.buildURL(voiceID, model)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial elevenlabs: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	text := strings.TrimSpace(req.Text)
	for _, payload := range []map[string]any{
		{"text": " "},
		{"text": text + " ", "flush": true},
		{"text": ""},
	} {
		_ = conn.SetWriteDeadline(time.Now().Add(elevenLabsWriteTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			return nil, fmt.Errorf("send elevenlabs text: %w", err)
		}
	}

	var out []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(out) > 0 {
				break
			}
			return nil, fmt.Errorf("read elevenlabs stream: %w", err)
		}
		var msg elevenLabsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("elevenlabs: %s: %s", msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode elevenlabs audio: %w", err)
			}
			out = append(out, chunk...)
		}
		if msg.IsFinal {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("elevenlabs returned no audio")
	}
	if s.wav {
		return audio.PCM16ToWAV(out, elevenLabsPCMRate, 1)
	}
	return out, nil
}

func (s *elevenLabsSynth) buildURL(voiceID, model string) (string, error) {
	base := strings.ReplaceAll(s.wsBaseURL, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("model_id", model)
	if s.wav {
		q.Set("output_format", fmt.Sprintf("pcm_%d", elevenLabsPCMRate))
	} else {
		q.Set("output_format", "mp3_44100_128")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
