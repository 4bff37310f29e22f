package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

const (
	defaultBitrate = "320k"
	ffmpegTimeout  = 5 * time.Minute
)

// FFmpegCodec checks fragments decode with ffmpeg and exports the merged track as
// constant-bitrate MP3.
type FFmpegCodec struct {
	cmd     []string
	bitrate string
}

func NewFFmpegCodec(command, bitrate string) (*FFmpegCodec, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse ffmpeg command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ffmpeg command empty")
	}
	if bitrate == "" {
		bitrate = defaultBitrate
	}
	return &FFmpegCodec{cmd: args, bitrate: bitrate}, nil
}

func (c *FFmpegCodec) Format() string { return "mp3" }

// Decode checks that ffmpeg can read every frame of data.
func (c *FFmpegCodec) Decode(data []byte) (Segment, error) {
	if len(data) == 0 {
		return Segment{}, ErrEmptyAudio
	}
	dir, err := os.MkdirTemp("", "podcast_decode_*")
	if err != nil {
		return Segment{}, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "fragment")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return Segment{}, fmt.Errorf("write fragment: %w", err)
	}
	if err := c.run("-v", "error", "-i", in, "-f", "null", "-"); err != nil {
		return Segment{}, fmt.Errorf("decode fragment: %w", err)
	}
	return Segment{Raw: data}, nil
}

// Export concatenates segments in order and re-encodes them with libmp3lame.
func (c *FFmpegCodec) Export(segments []Segment) ([]byte, error) {
	if len(segments) == 0 {
		return nil, ErrEmptyAudio
	}
	dir, err := os.MkdirTemp("", "podcast_merge_*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := []string{"-y", "-v", "error"}
	var filter strings.Builder
	for i, seg := range segments {
		path := filepath.Join(dir, fmt.Sprintf("segment_%04d", i))
		if err := os.WriteFile(path, seg.Raw, 0o600); err != nil {
			return nil, fmt.Errorf("write segment %d: %w", i, err)
		}
		args = append(args, "-i", path)
		fmt.Fprintf(&filter, "[%d:a]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[out]", len(segments))

	out := filepath.Join(dir, "merged.mp3")
	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-c:a", "libmp3lame",
		"-b:a", c.bitrate,
		out,
	)
	if err := c.run(args...); err != nil {
		return nil, fmt.Errorf("export mp3: %w", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("export produced empty output")
	}
	return data, nil
}

func (c *FFmpegCodec) run(extra ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), ffmpegTimeout)
	defer cancel()

	args := append(append([]string{}, c.cmd[1:]...), extra...)
	command := exec.CommandContext(ctx, c.cmd[0], args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
