// Package audio decodes synthesized fragments and merges them into one track.
package audio

import (
	"errors"
	"fmt"
	"time"

	goaudio "github.com/go-audio/audio"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

var ErrEmptyAudio = errors.New("empty audio")

// Segment is one decoded fragment. Raw always holds the bytes it was decoded
// from; PCM is only populated by codecs that decode to samples.
type Segment struct {
	Raw      []byte
	PCM      *goaudio.IntBuffer
	BitDepth int
	Duration time.Duration
}

// Codec validates fragments and exports an ordered list of them as a single
// encoded track.
type Codec interface {
	Decode(data []byte) (Segment, error)
	Export(segments []Segment) ([]byte, error)
	Format() string
}

// New builds the codec selected by cfg.Codec.
func New(cfg config.AudioConfig) (Codec, error) {
	switch cfg.Codec {
	case "wav", "":
		return WAVCodec{}, nil
	case "ffmpeg":
		return NewFFmpegCodec(cfg.FFmpegCommand, cfg.Bitrate)
	default:
		return nil, fmt.Errorf("unsupported audio codec %q", cfg.Codec)
	}
}

// Sniff names the container of data from its leading bytes, or "" when it is
// not recognised.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return "ogg"
	case len(data) >= 4 && string(data[:4]) == "fLaC":
		return "flac"
	}
	return ""
}
