package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// execRequest is what a transcript script reads on stdin. Params holds the
// flattened podcast parameters so a script can build its own prompt instead
// of using System and Prompt.
type execRequest struct {
	System      string            `json:"system"`
	Prompt      string            `json:"prompt"`
	Model       string            `json:"model,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature"`
	Params      map[string]string `json:"params,omitempty"`
	TraceID     string            `json:"trace_id,omitempty"`
}

type execResponse struct {
	Transcript       string `json:"transcript"`
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

type execGenerator struct {
	cmd []string
}

// NewExecGenerator runs command once per transcript request. The request is
// written as JSON to stdin; stdout is either a JSON object carrying
// "transcript" (or "content") or the tagged transcript as plain text.
func NewExecGenerator(command string) (Generator, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse llm command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("llm command empty")
	}
	return &execGenerator{cmd: args}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	input, err := json.Marshal(execRequest{
		System:      req.System,
		Prompt:      req.Prompt,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Params:      req.Params,
		TraceID:     req.TraceID,
	})
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, g.cmd[0], g.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	started := time.Now()
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return fmt.Errorf("llm exec command failed: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return fmt.Errorf("llm exec command failed: %w", err)
	}

	resp, err := decodeExecOutput(output)
	if err != nil {
		return err
	}
	return consumer(Chunk{
		Content:          resp.Transcript,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Latency:          time.Since(started),
		TraceID:          req.TraceID,
	})
}

func decodeExecOutput(output []byte) (execResponse, error) {
	trimmed := bytes.TrimSpace(output)
	if !bytes.HasPrefix(trimmed, []byte("{")) {
		return execResponse{Transcript: string(trimmed)}, nil
	}
	var resp execResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return execResponse{}, fmt.Errorf("decode llm exec response: %w", err)
	}
	if resp.Transcript == "" {
		resp.Transcript = resp.Content
	}
	return resp, nil
}
