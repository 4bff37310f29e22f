package eventstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "events.db")
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "ephemeral"})
	if err := es.CreateJob(context.Background(), "job", "src"); err != nil {
		t.Fatalf("create job: %v", err)
	}
	events, err := es.ListJobEvents(context.Background(), "job", 10)
	if err != nil || events != nil {
		t.Fatalf("expected no events in ephemeral mode, got %v, %v", events, err)
	}
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})

	if err := es.CreateJob(ctx, "job-1", "notes.md"); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{JobID: "job-1", Stage: "generation", Type: "stage.started"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{JobID: "job-1", Stage: "generation", Type: "stage.completed", Payload: []byte(`{"chars":10}`)}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.UpdateJob(ctx, "job-1", StatusFailed, "synthesis", "no valid audio"); err != nil {
		t.Fatalf("update job: %v", err)
	}

	job, err := es.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != StatusFailed || job.Stage != "synthesis" || job.Source != "notes.md" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.CreatedAt.IsZero() {
		t.Fatal("expected created timestamp")
	}

	events, err := es.ListJobEvents(ctx, "job-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].Type != "stage.started" || string(events[1].Payload) != `{"chars":10}` {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestUnknownJob(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})
	if _, err := es.GetJob(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := es.UpdateJob(context.Background(), "missing", StatusSucceeded, "", ""); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestPruneByDaysAndJobs(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxJobs: 1})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.CreateJob(ctx, "old-job", "a.txt"); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{JobID: "old-job", Type: "note"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	for _, id := range []string{"new-job-1", "new-job-2"} {
		if err := es.CreateJob(ctx, id, "b.txt"); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListJobEvents(ctx, "old-job", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old job pruned")
	}
	if _, err := es.GetJob(ctx, "old-job"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected old job removed, got %v", err)
	}
	kept := 0
	for _, id := range []string{"new-job-1", "new-job-2"} {
		if _, err := es.GetJob(ctx, id); err == nil {
			kept++
		}
	}
	if kept != 1 {
		t.Fatalf("expected max_jobs to keep 1 job, kept %d", kept)
	}
}
