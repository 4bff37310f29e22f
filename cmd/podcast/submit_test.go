package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

func event(t *testing.T, subject string, v any) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return &nats.Msg{Subject: subject, Data: data}
}

func TestAwaitJobIgnoresOtherJobs(t *testing.T) {
	events := make(chan *nats.Msg, 4)
	events <- event(t, protocol.SubjectPodcastFailed, protocol.PodcastFailed{JobID: "other", Error: "boom"})
	events <- event(t, protocol.SubjectPodcastProgress, protocol.PodcastProgress{JobID: "mine", Stage: "synthesis"})
	events <- event(t, protocol.SubjectPodcastDone, protocol.PodcastDone{JobID: "mine", TranscriptPath: "t.txt"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := awaitJob(ctx, "mine", events); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestAwaitJobReportsFailure(t *testing.T) {
	events := make(chan *nats.Msg, 1)
	events <- event(t, protocol.SubjectPodcastFailed, protocol.PodcastFailed{JobID: "mine", Stage: "generation", Error: "model unavailable"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := awaitJob(ctx, "mine", events)
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected failure, got %v", err)
	}
}

func TestAwaitJobTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := awaitJob(ctx, "mine", make(chan *nats.Msg)); err == nil {
		t.Fatal("expected timeout")
	}
}
