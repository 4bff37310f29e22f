package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVCodec concatenates PCM WAV fragments. All fragments must share sample
// rate, channel count and bit depth.
type WAVCodec struct{}

func (WAVCodec) Format() string { return "wav" }

func (WAVCodec) Decode(data []byte) (Segment, error) {
	if len(data) == 0 {
		return Segment{}, ErrEmptyAudio
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() || dec.SampleRate == 0 {
		return Segment{}, fmt.Errorf("invalid wav data")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Segment{}, fmt.Errorf("decode wav: %w", err)
	}
	frames := buf.NumFrames()
	if frames == 0 {
		return Segment{}, ErrEmptyAudio
	}
	return Segment{
		Raw:      data,
		PCM:      buf,
		BitDepth: int(dec.BitDepth),
		Duration: time.Duration(frames) * time.Second / time.Duration(dec.SampleRate),
	}, nil
}

func (WAVCodec) Export(segments []Segment) ([]byte, error) {
	if len(segments) == 0 {
		return nil, ErrEmptyAudio
	}
	first := segments[0]
	if first.PCM == nil || first.PCM.Format == nil {
		return nil, fmt.Errorf("segment 0 has no pcm data")
	}
	format := *first.PCM.Format
	merged := &goaudio.IntBuffer{Format: &format, SourceBitDepth: first.BitDepth}
	for i, seg := range segments {
		if seg.PCM == nil || seg.PCM.Format == nil {
			return nil, fmt.Errorf("segment %d has no pcm data", i)
		}
		if seg.PCM.Format.SampleRate != format.SampleRate || seg.PCM.Format.NumChannels != format.NumChannels || seg.BitDepth != first.BitDepth {
			return nil, fmt.Errorf("segment %d format mismatch: %d Hz/%d ch/%d bit, want %d Hz/%d ch/%d bit",
				i, seg.PCM.Format.SampleRate, seg.PCM.Format.NumChannels, seg.BitDepth,
				format.SampleRate, format.NumChannels, first.BitDepth)
		}
		merged.Data = append(merged.Data, seg.PCM.Data...)
	}
	return EncodeWAV(merged, first.BitDepth)
}

// EncodeWAV writes buf as a PCM WAV file and returns its bytes.
func EncodeWAV(buf *goaudio.IntBuffer, bitDepth int) ([]byte, error) {
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("pcm buffer has no format")
	}
	file, err := os.CreateTemp("", "podcast_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	enc := wav.NewEncoder(file, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return os.ReadFile(file.Name())
}

// PCM16ToWAV wraps little-endian signed 16-bit PCM in a WAV container.
func PCM16ToWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(pcm)/2),
	}
	for i := range buf.Data {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return EncodeWAV(buf, 16)
}

// Tone renders a sine tone as a 16-bit WAV file.
func Tone(sampleRate, channels int, duration time.Duration, freq float64) ([]byte, error) {
	frames := int(duration.Seconds() * float64(sampleRate))
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, frames*channels),
	}
	for f := 0; f < frames; f++ {
		v := int(math.Sin(2*math.Pi*freq*float64(f)/float64(sampleRate)) * 8000)
		for c := 0; c < channels; c++ {
			buf.Data[f*channels+c] = v
		}
	}
	return EncodeWAV(buf, 16)
}
