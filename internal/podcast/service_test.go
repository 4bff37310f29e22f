package podcast

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/conversation"
	"github.com/loqalabs/loqa-podcast/internal/eventstore"
	"github.com/loqalabs/loqa-podcast/internal/natsserver"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir()}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), "podcast-test", config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func openStore(t *testing.T) *eventstore.Store {
	t.Helper()
	es, err := eventstore.Open(context.Background(), config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "events.db"),
		RetentionMode: "session",
	}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func startService(t *testing.T, client *bus.Client, runner Runner, store *eventstore.Store) {
	t.Helper()
	svc := NewService(context.Background(), config.PodcastConfig{Enabled: true, MaxConcurrentJobs: 1, JobTimeoutSeconds: 30}, client, runner, store, conversation.Default(), newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	if !svc.Healthy() {
		t.Fatal("service should be healthy after start")
	}
}

func request(t *testing.T, client *bus.Client, req protocol.PodcastRequest) protocol.PodcastAck {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var a protocol.PodcastAck
	if err := client.RequestJSON(ctx, protocol.SubjectPodcastRequest, req, &a); err != nil {
		t.Fatalf("request: %v", err)
	}
	return a
}

func TestServiceRunsJob(t *testing.T) {
	client := startBus(t)
	store := openStore(t)
	startService(t, client, newPipeline(t, Options{}), store)

	done := make(chan *nats.Msg, 1)
	sub, err := client.Conn().ChanSubscribe(protocol.SubjectPodcastDone, done)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	a := request(t, client, protocol.PodcastRequest{JobID: "svc-1", Text: "Tides follow the moon.", Style: "casual"})
	if a.JobID != "svc-1" || a.Error != "" {
		t.Fatalf("unexpected ack %+v", a)
	}

	select {
	case msg := <-done:
		var evt protocol.PodcastDone
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			t.Fatalf("decode done: %v", err)
		}
		if evt.JobID != "svc-1" || evt.AudioPath == "" || evt.Fragments != 2 {
			t.Fatalf("unexpected done event %+v", evt)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for podcast.done")
	}

	// The done event is published after the store is updated.
	job, err := store.GetJob(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != eventstore.StatusSucceeded {
		t.Fatalf("unexpected job status %q", job.Status)
	}
	events, err := store.ListJobEvents(context.Background(), "svc-1", 20)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) < 4 || events[len(events)-1].Type != "job.completed" {
		t.Fatalf("unexpected job events %+v", events)
	}
}

type failingRunner struct{}

func (failingRunner) Run(ctx context.Context, job Job) (Result, error) {
	job.Progress(StageGeneration, "")
	return Result{}, &StageError{Stage: StageGeneration, Err: errors.New("model unavailable")}
}

func TestServicePublishesFailure(t *testing.T) {
	client := startBus(t)
	store := openStore(t)
	startService(t, client, failingRunner{}, store)

	failed := make(chan *nats.Msg, 2)
	sub, err := client.Conn().ChanSubscribe(protocol.SubjectPodcastFailed, failed)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	request(t, client, protocol.PodcastRequest{JobID: "svc-2", Text: "anything"})

	select {
	case msg := <-failed:
		var evt protocol.PodcastFailed
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if evt.JobID != "svc-2" || evt.Stage != string(StageGeneration) {
			t.Fatalf("unexpected failed event %+v", evt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for podcast.failed")
	}
	job, err := store.GetJob(context.Background(), "svc-2")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != eventstore.StatusFailed || job.Error == "" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestServiceRejectsEmptyRequest(t *testing.T) {
	client := startBus(t)
	startService(t, client, failingRunner{}, nil)

	a := request(t, client, protocol.PodcastRequest{JobID: "svc-3"})
	if a.Error == "" {
		t.Fatal("expected rejection for request without content")
	}
	a = request(t, client, protocol.PodcastRequest{Text: "x", Style: "no-such-style"})
	if a.Error == "" {
		t.Fatal("expected rejection for unknown style")
	}
}
