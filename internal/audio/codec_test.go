package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

func TestWAVRoundTrip(t *testing.T) {
	first, err := Tone(8000, 1, 100*time.Millisecond, 440)
	if err != nil {
		t.Fatalf("tone: %v", err)
	}
	second, err := Tone(8000, 1, 200*time.Millisecond, 660)
	if err != nil {
		t.Fatalf("tone: %v", err)
	}

	codec := WAVCodec{}
	a, err := codec.Decode(first)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	b, err := codec.Decode(second)
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if a.Duration != 100*time.Millisecond {
		t.Fatalf("unexpected duration %v", a.Duration)
	}

	merged, err := codec.Export([]Segment{a, b})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	out, err := codec.Decode(merged)
	if err != nil {
		t.Fatalf("decode merged: %v", err)
	}
	if out.PCM.NumFrames() != a.PCM.NumFrames()+b.PCM.NumFrames() {
		t.Fatalf("expected %d frames, got %d", a.PCM.NumFrames()+b.PCM.NumFrames(), out.PCM.NumFrames())
	}
}

func TestWAVDecodeRejectsGarbage(t *testing.T) {
	codec := WAVCodec{}
	if _, err := codec.Decode([]byte("definitely not audio")); err == nil {
		t.Fatal("expected error for invalid data")
	}
	if _, err := codec.Decode(nil); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestWAVExportRejectsMixedRates(t *testing.T) {
	low, _ := Tone(8000, 1, 50*time.Millisecond, 440)
	high, _ := Tone(16000, 1, 50*time.Millisecond, 440)
	codec := WAVCodec{}
	a, err := codec.Decode(low)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, err := codec.Decode(high)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := codec.Export([]Segment{a, b}); err == nil {
		t.Fatal("expected format mismatch error")
	}
}

func TestPCM16ToWAV(t *testing.T) {
	pcm := make([]byte, 1600)
	data, err := PCM16ToWAV(pcm, 8000, 1)
	if err != nil {
		t.Fatalf("wrap pcm: %v", err)
	}
	seg, err := WAVCodec{}.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seg.PCM.NumFrames() != 800 {
		t.Fatalf("expected 800 frames, got %d", seg.PCM.NumFrames())
	}
	if _, err := PCM16ToWAV([]byte{1}, 8000, 1); err == nil {
		t.Fatal("expected alignment error")
	}
}

func TestNewCodec(t *testing.T) {
	c, err := New(config.AudioConfig{Codec: "ffmpeg", FFmpegCommand: "ffmpeg -hide_banner"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	ff, ok := c.(*FFmpegCodec)
	if !ok || ff.bitrate != defaultBitrate || len(ff.cmd) != 2 || c.Format() != "mp3" {
		t.Fatalf("unexpected codec %#v", c)
	}
	if _, err := New(config.AudioConfig{Codec: "flac"}); err == nil {
		t.Fatal("expected error for unsupported codec")
	}
}

func TestSniff(t *testing.T) {
	wav, err := Tone(8000, 1, 10*time.Millisecond, 440)
	if err != nil {
		t.Fatalf("tone: %v", err)
	}
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{name: "wav", data: wav, want: "wav"},
		{name: "id3", data: []byte("ID3\x04\x00rest"), want: "mp3"},
		{name: "frame sync", data: []byte{0xFF, 0xFB, 0x90, 0x00}, want: "mp3"},
		{name: "ogg", data: []byte("OggS\x00\x02"), want: "ogg"},
		{name: "unknown", data: []byte("audio:two"), want: ""},
		{name: "empty", data: nil, want: ""},
	}
	for _, tc := range cases {
		if got := Sniff(tc.data); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
