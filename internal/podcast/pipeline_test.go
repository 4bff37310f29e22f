package podcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/loqalabs/loqa-podcast/internal/audio"
	"github.com/loqalabs/loqa-podcast/internal/conversation"
	"github.com/loqalabs/loqa-podcast/internal/format"
	"github.com/loqalabs/loqa-podcast/internal/llm"
	"github.com/loqalabs/loqa-podcast/internal/source"
	"github.com/loqalabs/loqa-podcast/internal/synthesis"
	"github.com/loqalabs/loqa-podcast/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.LLM == nil {
		opts.LLM = llm.NewMockGenerator()
	}
	if opts.Synth == nil {
		opts.Synth = tts.NewMockSynth(8000, 1)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(t.TempDir(), "out")
	}
	p, err := NewPipeline(opts, newLogger())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestRunProducesTranscriptAndAudio(t *testing.T) {
	p := newPipeline(t, Options{Concurrency: 2})
	var mu sync.Mutex
	var stages []Stage
	res, err := p.Run(context.Background(), Job{
		ID:           "job1",
		Text:         "Solar panels convert sunlight into electricity.",
		Conversation: conversation.Default(),
		Progress: func(stage Stage, _ string) {
			mu.Lock()
			stages = append(stages, stage)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.Transcript, "<Person1>") || !strings.Contains(res.Transcript, "<Person2>") {
		t.Fatalf("unexpected transcript %q", res.Transcript)
	}
	written, err := os.ReadFile(res.TranscriptPath)
	if err != nil || string(written) != res.Transcript {
		t.Fatalf("transcript file mismatch: %v", err)
	}
	if filepath.Base(res.AudioPath) != "podcast_job1.wav" {
		t.Fatalf("unexpected audio path %s", res.AudioPath)
	}
	data, err := os.ReadFile(res.AudioPath)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if _, err := (audio.WAVCodec{}).Decode(data); err != nil {
		t.Fatalf("audio not decodable: %v", err)
	}
	if res.Fragments != 2 || len(res.Track.Included) != 2 {
		t.Fatalf("expected 2 fragments, got %d (%v)", res.Fragments, res.Track.Included)
	}
	want := []Stage{StageInput, StageGeneration, StageSynthesis, StageOutput}
	if len(stages) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("expected stages %v, got %v", want, stages)
		}
	}
}

func TestRunLongformFromFiles(t *testing.T) {
	dir := t.TempDir()
	body := strings.Repeat("Wind turbines spin in steady breezes. ", 60)
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# Wind\n\n"+body), 0o644); err != nil {
		t.Fatal(err)
	}
	calls := 0
	backend := llmFunc(func(ctx context.Context, req llm.Request, consumer func(llm.Chunk) error) error {
		calls++
		return consumer(llm.Chunk{Content: "<Person1>Part question?</Person1><Person2>Part answer.</Person2>"})
	})
	conv := conversation.Default()
	conv.Chunking.MaxChunkCount = 3
	conv.Chunking.MinChunkSize = 200
	p := newPipeline(t, Options{LLM: backend})

	res, err := p.Run(context.Background(), Job{ID: "long", Sources: []string{dir}, Longform: true, TranscriptOnly: true, Conversation: conv})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls < 2 {
		t.Fatalf("expected several generation calls, got %d", calls)
	}
	if res.AudioPath != "" {
		t.Fatal("transcript-only run should not write audio")
	}
	if strings.Count(res.Transcript, "<Person1>") != calls {
		t.Fatalf("expected one exchange per part, got %q", res.Transcript)
	}
}

func TestRunFromTranscriptWithChunkPlan(t *testing.T) {
	var mu sync.Mutex
	var requests []tts.SynthRequest
	mock := tts.NewMockSynth(8000, 1)
	synth := tts.SynthesizerFunc(func(ctx context.Context, req tts.SynthRequest) ([]byte, error) {
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		return mock.Synthesize(ctx, req)
	})
	p := newPipeline(t, Options{Synth: synth, Plan: "chunks"})

	res, err := p.Run(context.Background(), Job{
		ID:           "chunked",
		Transcript:   "<Person1>Hello.</Person1><Person2>Hi there.</Person2><Person1>Let's begin.</Person1>",
		Conversation: conversation.Default(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Fragments != 1 || len(requests) != 1 {
		t.Fatalf("expected one multi-speaker request, got %d fragments, %d requests", res.Fragments, len(requests))
	}
	if requests[0].Voice != "echo" || requests[0].Voice2 != "shimmer" {
		t.Fatalf("unexpected voices %+v", requests[0])
	}
}

func TestRunInputErrors(t *testing.T) {
	p := newPipeline(t, Options{})

	_, err := p.Run(context.Background(), Job{ID: "empty", Conversation: conversation.Default()})
	if FailedStage(err) != StageInput || !errors.Is(err, source.ErrEmptySource) {
		t.Fatalf("expected input stage ErrEmptySource, got %v", err)
	}

	bad := conversation.Default()
	bad.PodcastName = ""
	if _, err := p.Run(context.Background(), Job{ID: "bad", Text: "x", Conversation: bad}); FailedStage(err) != StageInput {
		t.Fatalf("expected input stage error, got %v", err)
	}
}

func TestRunGenerationFailure(t *testing.T) {
	boom := errors.New("model unavailable")
	backend := llmFunc(func(context.Context, llm.Request, func(llm.Chunk) error) error { return boom })
	p := newPipeline(t, Options{LLM: backend})
	_, err := p.Run(context.Background(), Job{ID: "gen", Text: "topic", Conversation: conversation.Default()})
	if FailedStage(err) != StageGeneration || !errors.Is(err, boom) {
		t.Fatalf("expected generation failure, got %v", err)
	}
}

func TestRunNoValidAudio(t *testing.T) {
	synth := tts.SynthesizerFunc(func(context.Context, tts.SynthRequest) ([]byte, error) {
		return nil, errors.New("quota exceeded")
	})
	p := newPipeline(t, Options{Synth: synth})
	_, err := p.Run(context.Background(), Job{ID: "tts", Text: "topic", Conversation: conversation.Default()})
	if FailedStage(err) != StageMerge || !errors.Is(err, synthesis.ErrNoValidAudio) {
		t.Fatalf("expected merge failure, got %v", err)
	}
}

func TestRunTranscriptWithoutTurns(t *testing.T) {
	conv := conversation.Default()
	conv.Format = format.Monologue
	p := newPipeline(t, Options{})
	_, err := p.Run(context.Background(), Job{ID: "none", Transcript: "no tags here", Conversation: conv})
	if FailedStage(err) != StageSynthesis || !errors.Is(err, ErrNoTurns) {
		t.Fatalf("expected ErrNoTurns, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newPipeline(t, Options{})
	_, err := p.Run(ctx, Job{ID: "cancel", Text: "topic", Conversation: conversation.Default()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

type llmFunc func(ctx context.Context, req llm.Request, consumer func(llm.Chunk) error) error

func (f llmFunc) Generate(ctx context.Context, req llm.Request, consumer func(llm.Chunk) error) error {
	return f(ctx, req, consumer)
}

func TestRunRecordsStageMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	meter := provider.Meter("test")

	p := newPipeline(t, Options{Meter: meter})
	if _, err := p.Run(context.Background(), Job{ID: "ok", Text: "topic", Conversation: conversation.Default()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	boom := errors.New("model unavailable")
	failing := newPipeline(t, Options{Meter: meter, LLM: llmFunc(func(context.Context, llm.Request, func(llm.Chunk) error) error { return boom })})
	if _, err := failing.Run(context.Background(), Job{ID: "bad", Text: "topic", Conversation: conversation.Default()}); err == nil {
		t.Fatal("expected failure")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	jobs := map[string]int64{}
	stages := map[string]uint64{}
	var fragments int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					switch m.Name {
					case "podcast.jobs":
						outcome, _ := dp.Attributes.Value("outcome")
						jobs[outcome.AsString()] += dp.Value
					case "podcast.fragments":
						fragments += dp.Value
					}
				}
			case metricdata.Histogram[float64]:
				if m.Name != "podcast.stage.duration" {
					continue
				}
				for _, dp := range data.DataPoints {
					stage, _ := dp.Attributes.Value("stage")
					stages[stage.AsString()] += dp.Count
				}
			}
		}
	}
	if jobs[outcomeSucceeded] != 1 || jobs[outcomeFailed] != 1 {
		t.Fatalf("unexpected job counts %v", jobs)
	}
	if fragments != 2 {
		t.Fatalf("expected 2 fragments, got %d", fragments)
	}
	// input and generation run twice; synthesis and output only for the job that succeeded.
	want := map[string]uint64{"input": 2, "generation": 2, "synthesis": 1, "output": 1}
	for stage, n := range want {
		if stages[stage] != n {
			t.Fatalf("expected %d %s observations, got %v", n, stage, stages)
		}
	}
}
