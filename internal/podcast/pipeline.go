// Package podcast runs the end-to-end production of an episode: source
// loading, transcript generation, speech synthesis and audio export.
package podcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-podcast/internal/audio"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/conversation"
	"github.com/loqalabs/loqa-podcast/internal/format"
	"github.com/loqalabs/loqa-podcast/internal/llm"
	"github.com/loqalabs/loqa-podcast/internal/markup"
	"github.com/loqalabs/loqa-podcast/internal/source"
	"github.com/loqalabs/loqa-podcast/internal/synthesis"
	"github.com/loqalabs/loqa-podcast/internal/transcript"
	"github.com/loqalabs/loqa-podcast/internal/tts"
)

// Stage names a pipeline step.
type Stage string

const (
	StageInput      Stage = "input"
	StageGeneration Stage = "generation"
	StageSynthesis  Stage = "synthesis"
	StageMerge      Stage = "merge"
	StageOutput     Stage = "output"
)

// StageError reports the step a job failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or "".
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// ErrNoTurns is returned when a transcript holds no speaker sections.
var ErrNoTurns = errors.New("transcript has no speaker turns")

// Job describes one episode to produce. Exactly one of Transcript, Text or
// Sources supplies the content; Transcript skips generation.
type Job struct {
	ID             string
	Sources        []string
	Text           string
	Transcript     string
	Longform       bool
	TranscriptOnly bool
	Conversation   conversation.Config
	// Progress, when set, is called as the job enters each stage.
	Progress func(stage Stage, detail string)
}

// Result lists what a job produced.
type Result struct {
	JobID          string
	Transcript     string
	TranscriptPath string
	AudioPath      string
	Track          synthesis.Track
	Fragments      int
	Duration       time.Duration
}

// Options wires the pipeline's backends.
type Options struct {
	LLM         llm.Generator
	LLMDefaults llm.Request
	LLMTimeout  time.Duration
	Synth       tts.Synthesizer
	Codec       audio.Codec
	// Plan is "turns" (one request per turn piece) or "chunks" (tagged
	// multi-speaker requests within ByteBudget).
	Plan        string
	ByteBudget  int
	TurnChars   int
	Concurrency int
	TTSModel    string
	OutputDir   string
	// Meter records stage and job metrics; the global meter when nil.
	Meter metric.Meter
}

// Pipeline produces episodes. It is safe for concurrent use.
type Pipeline struct {
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *pipelineMetrics
}

func NewPipeline(opts Options, logger *slog.Logger) (*Pipeline, error) {
	if opts.LLM == nil {
		return nil, errors.New("llm backend is required")
	}
	if opts.Synth == nil {
		return nil, errors.New("tts backend is required")
	}
	if opts.Codec == nil {
		opts.Codec = audio.WAVCodec{}
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "./data"
	}
	if opts.Plan == "" {
		opts.Plan = "turns"
	}
	if opts.TurnChars <= 0 {
		opts.TurnChars = synthesis.DefaultTurnChars
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter("github.com/loqalabs/loqa-podcast/podcast")
	}
	p := &Pipeline{
		opts:   opts,
		logger: logger.With(slog.String("component", "pipeline")),
		tracer: otel.Tracer("github.com/loqalabs/loqa-podcast/podcast"),
	}
	metrics, err := newPipelineMetrics(opts.Meter)
	if err != nil {
		p.logger.Warn("failed to initialize metrics", slogError(err))
	}
	p.metrics = metrics
	return p, nil
}

// NewPipelineFromConfig builds the backends selected in cfg.
func NewPipelineFromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	gen, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("llm backend: %w", err)
	}
	codec, err := audio.New(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio codec: %w", err)
	}
	synth, err := tts.New(cfg.TTS, codec.Format())
	if err != nil {
		return nil, fmt.Errorf("tts backend: %w", err)
	}
	return NewPipeline(Options{
		LLM:         gen,
		LLMDefaults: llm.OptionsFromConfig(cfg.LLM),
		LLMTimeout:  time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond,
		Synth:       synth,
		Codec:       codec,
		Plan:        cfg.TTS.Plan,
		ByteBudget:  cfg.TTS.ByteBudget,
		TurnChars:   cfg.TTS.TurnChars,
		Concurrency: cfg.TTS.Concurrency,
		TTSModel:    cfg.TTS.Model,
		OutputDir:   cfg.Podcast.OutputDir,
	}, logger)
}

// Run produces one episode. Errors are *StageError values naming the failed
// step; cancellation of ctx is reported through the stage that was running.
func (p *Pipeline) Run(ctx context.Context, job Job) (Result, error) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "podcast.run", trace.WithAttributes(
		attribute.String("podcast.job_id", job.ID),
		attribute.Bool("podcast.longform", job.Longform),
	))
	defer span.End()
	logger := p.logger.With(slog.String("job_id", job.ID))

	var (
		current    Stage
		stageStart time.Time
	)
	enter := func(stage Stage, detail string) {
		now := time.Now()
		p.metrics.observeStage(ctx, current, now.Sub(stageStart), outcomeSucceeded)
		current, stageStart = stage, now
		p.progress(job, stage, detail)
	}
	finish := func(outcome string, failed Stage) {
		p.metrics.observeStage(ctx, current, time.Since(stageStart), outcome)
		p.metrics.observeJob(ctx, outcome, failed)
	}

	fail := func(stage Stage, err error) (Result, error) {
		finish(outcomeFailed, stage)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		logger.Error("job failed", slog.String("stage", string(stage)), slogError(err))
		return Result{}, &StageError{Stage: stage, Err: err}
	}

	res := Result{JobID: job.ID}

	enter(StageInput, "")
	conv := job.Conversation
	if err := conv.Validate(); err != nil {
		return fail(StageInput, err)
	}
	if err := format.ValidateParams(conv.Params().Map()); err != nil {
		return fail(StageInput, err)
	}
	tmpl, err := format.ForFormat(conv.Format, p.logger)
	if err != nil {
		return fail(StageInput, err)
	}
	content, err := p.loadContent(job)
	if err != nil {
		return fail(StageInput, err)
	}

	if job.Transcript != "" {
		res.Transcript = tmpl.Clean(job.Transcript)
	} else {
		enter(StageGeneration, fmt.Sprintf("%d chars", len(content)))
		res.Transcript, err = p.generate(ctx, tmpl, conv, content, job.Longform)
		if err != nil {
			return fail(StageGeneration, err)
		}
	}

	res.TranscriptPath, err = p.write(filepath.Join("transcripts", "transcript_"+job.ID+".txt"), []byte(res.Transcript))
	if err != nil {
		return fail(StageOutput, err)
	}
	logger.Info("transcript written", slog.String("path", res.TranscriptPath), slog.Int("chars", len(res.Transcript)))
	if job.TranscriptOnly {
		finish(outcomeSucceeded, "")
		res.Duration = time.Since(started)
		return res, nil
	}

	fragments := p.plan(res.Transcript, tmpl.SupportedTags())
	if len(fragments) == 0 {
		return fail(StageSynthesis, ErrNoTurns)
	}
	res.Fragments = len(fragments)
	enter(StageSynthesis, fmt.Sprintf("%d fragments", len(fragments)))

	assembler := synthesis.NewAssembler(p.opts.Synth, p.opts.Codec, synthesis.AssemblerOptions{
		Concurrency: p.opts.Concurrency,
		Model:       p.opts.TTSModel,
	}, logger)
	track, err := assembler.SynthesizeAndMerge(ctx, fragments, conv.Voices)
	if err != nil {
		if errors.Is(err, synthesis.ErrNoValidAudio) {
			return fail(StageMerge, err)
		}
		return fail(StageSynthesis, err)
	}
	res.Track = track
	p.metrics.observeFragments(ctx, len(track.Included), len(track.Skipped))
	if track.Degraded {
		enter(StageMerge, "export failed, kept first fragment only")
	}

	enter(StageOutput, "")
	res.AudioPath, err = p.write(filepath.Join("audio", "podcast_"+job.ID+"."+track.Format), track.Audio)
	if err != nil {
		return fail(StageOutput, err)
	}
	finish(outcomeSucceeded, "")
	res.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("podcast.fragments", res.Fragments),
		attribute.Int("podcast.skipped", len(track.Skipped)),
	)
	logger.Info("episode written",
		slog.String("path", res.AudioPath),
		slog.Int("fragments", res.Fragments),
		slog.Int("skipped", len(track.Skipped)),
		slog.Bool("degraded", track.Degraded),
		slog.Duration("took", res.Duration),
	)
	return res, nil
}

func (p *Pipeline) progress(job Job, stage Stage, detail string) {
	if job.Progress != nil {
		job.Progress(stage, detail)
	}
}

func (p *Pipeline) loadContent(job Job) (string, error) {
	switch {
	case job.Transcript != "":
		return "", nil
	case strings.TrimSpace(job.Text) != "":
		return strings.TrimSpace(job.Text), nil
	case len(job.Sources) > 0:
		docs, err := source.Load(job.Sources...)
		if err != nil {
			return "", err
		}
		return source.Join(docs), nil
	default:
		return "", source.ErrEmptySource
	}
}

func (p *Pipeline) generate(ctx context.Context, tmpl *format.Template, conv conversation.Config, content string, longform bool) (string, error) {
	defaults := p.opts.LLMDefaults
	defaults.Temperature = conv.Creativity
	var gen transcript.Generator = transcript.NewLLMGenerator(p.opts.LLM, tmpl, defaults)
	if timeout := p.opts.LLMTimeout; timeout > 0 {
		inner := gen
		gen = transcript.GeneratorFunc(func(ctx context.Context, params transcript.Params) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return inner.Generate(ctx, params)
		})
	}

	orch, err := transcript.NewOrchestrator(gen, tmpl, conv.Chunking, p.logger)
	if err != nil {
		return "", err
	}
	var out string
	if longform {
		out, err = orch.GenerateLongForm(ctx, content, conv.Params())
	} else {
		out, err = orch.GenerateShortForm(ctx, content, conv.Params())
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.New("generated transcript is empty")
	}
	return out, nil
}

func (p *Pipeline) plan(text string, tags []string) []synthesis.Fragment {
	if p.opts.Plan == "chunks" {
		chunks := synthesis.ChunkTranscript(text, tags, p.opts.ByteBudget)
		out := make([]synthesis.Fragment, len(chunks))
		for i, c := range chunks {
			out[i] = c.Fragment()
		}
		return out
	}
	return synthesis.PlanTurns(markup.ExtractTurns(text, tags), p.opts.TurnChars)
}

func (p *Pipeline) write(rel string, data []byte) (string, error) {
	path := filepath.Join(p.opts.OutputDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
