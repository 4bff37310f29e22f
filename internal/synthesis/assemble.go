package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-podcast/internal/audio"
	"github.com/loqalabs/loqa-podcast/internal/tts"
)

// ErrNoValidAudio is returned when no fragment could be synthesized and decoded.
var ErrNoValidAudio = errors.New("no valid audio")

// VoiceMap assigns synthesizer voices to speakers. Question voices Person1 and
// the monologue Speaker; Answer voices Person2.
type VoiceMap struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// For returns the voice for a speaker tag.
func (v VoiceMap) For(speaker string) string {
	if speaker == "Person2" {
		return v.Answer
	}
	return v.Question
}

// Track is the merged result of one assembly.
type Track struct {
	Audio    []byte
	Format   string
	Included []int // fragment indexes present in Audio, in order
	Skipped  []int // fragment indexes that failed synthesis or decoding
	Degraded bool  // export failed and Audio is the first good fragment only
}

type AssemblerOptions struct {
	Concurrency int
	Model       string
}

// Assembler synthesizes fragments and merges them in fragment order.
type Assembler struct {
	synth   tts.Synthesizer
	codec   audio.Codec
	opts    AssemblerOptions
	logger  *slog.Logger
	tracer  trace.Tracer
	outcome metric.Int64Counter
	latency metric.Float64Histogram
}

func NewAssembler(synth tts.Synthesizer, codec audio.Codec, opts AssemblerOptions, logger *slog.Logger) *Assembler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Assembler{
		synth:  synth,
		codec:  codec,
		opts:   opts,
		logger: logger.With(slog.String("component", "assembler")),
		tracer: otel.Tracer("github.com/loqalabs/loqa-podcast/synthesis"),
	}
	if err := a.initMetrics(); err != nil {
		a.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return a
}

func (a *Assembler) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-podcast/synthesis")
	outcome, err := meter.Int64Counter("podcast.synthesis.fragments", metric.WithDescription("Synthesized fragments by outcome"))
	if err != nil {
		return err
	}
	latency, err := meter.Float64Histogram("podcast.synthesis.latency", metric.WithDescription("Synthesis call latency"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}
	a.outcome = outcome
	a.latency = latency
	return nil
}

type result struct {
	segment audio.Segment
	ok      bool
}

// SynthesizeAndMerge voices every fragment and merges the decodable ones in
// fragment order. Failed fragments are logged and left out. When none
// succeed ErrNoValidAudio is returned; when only the final export fails the
// first good fragment is returned on its own with Degraded set.
func (a *Assembler) SynthesizeAndMerge(ctx context.Context, fragments []Fragment, voices VoiceMap) (Track, error) {
	ctx, span := a.tracer.Start(ctx, "synthesis.merge", trace.WithAttributes(
		attribute.Int("synthesis.fragments", len(fragments)),
		attribute.Int("synthesis.concurrency", a.opts.Concurrency),
	))
	defer span.End()

	results := make([]result, len(fragments))
	sem := make(chan struct{}, a.opts.Concurrency)
	var wg sync.WaitGroup
	for i := range fragments {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = a.synthesizeOne(ctx, fragments[i], voices)
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return Track{}, err
	}

	track := Track{Format: a.codec.Format()}
	var segments []audio.Segment
	for i, r := range results {
		if !r.ok {
			track.Skipped = append(track.Skipped, fragments[i].Index)
			continue
		}
		track.Included = append(track.Included, fragments[i].Index)
		segments = append(segments, r.segment)
	}
	span.SetAttributes(
		attribute.Int("synthesis.included", len(track.Included)),
		attribute.Int("synthesis.skipped", len(track.Skipped)),
	)
	if len(segments) == 0 {
		span.SetStatus(codes.Error, "no valid audio")
		a.logger.Error("no fragment produced usable audio", slog.Int("fragments", len(fragments)))
		return Track{}, fmt.Errorf("%w: %d of %d fragments failed", ErrNoValidAudio, len(fragments), len(fragments))
	}

	merged, err := a.codec.Export(segments)
	if err != nil {
		a.logger.Warn("export failed, falling back to first fragment",
			slog.Int("segments", len(segments)),
			slogError(err),
		)
		span.AddEvent("export degraded")
		track.Audio = segments[0].Raw
		track.Included = track.Included[:1]
		track.Degraded = true
		// The fragment keeps the synthesizer's container, not the codec's.
		if container := audio.Sniff(track.Audio); container != "" {
			track.Format = container
		}
		return track, nil
	}
	track.Audio = merged
	a.logger.Info("audio assembled",
		slog.Int("included", len(track.Included)),
		slog.Int("skipped", len(track.Skipped)),
		slog.Int("bytes", len(merged)),
	)
	return track, nil
}

func (a *Assembler) synthesizeOne(ctx context.Context, f Fragment, voices VoiceMap) result {
	req := tts.SynthRequest{Text: f.Text, Model: a.opts.Model}
	if f.Speaker == "" {
		req.Voice = voices.Question
		req.Voice2 = voices.Answer
	} else {
		req.Voice = voices.For(f.Speaker)
	}

	started := time.Now()
	data, err := a.synth.Synthesize(ctx, req)
	if a.latency != nil {
		a.latency.Record(ctx, float64(time.Since(started).Milliseconds()))
	}
	if err != nil {
		a.logger.Warn("fragment synthesis failed",
			slog.Int("fragment", f.Index),
			slog.String("speaker", f.Speaker),
			slogError(err),
		)
		a.count(ctx, "failed")
		return result{}
	}
	seg, err := a.codec.Decode(data)
	if err != nil {
		a.logger.Warn("fragment audio undecodable",
			slog.Int("fragment", f.Index),
			slog.Int("bytes", len(data)),
			slogError(err),
		)
		a.count(ctx, "undecodable")
		return result{}
	}
	a.count(ctx, "ok")
	return result{segment: seg, ok: true}
}

func (a *Assembler) count(ctx context.Context, outcome string) {
	if a.outcome != nil {
		a.outcome.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
