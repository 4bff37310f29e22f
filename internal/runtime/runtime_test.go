package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/capability"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/natsserver"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHealthAlwaysOK(t *testing.T) {
	rt := New(config.Default(), "test", newLogger())
	rec := httptest.NewRecorder()
	rt.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadyBeforeStart(t *testing.T) {
	rt := New(config.Default(), "test", newLogger())
	rec := httptest.NewRecorder()
	rt.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", rec.Code)
	}
}

func TestSetupTelemetryServesMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Node.ID = "studio-9"
	cfg.Telemetry.Traces = "none"
	shutdown, handler, err := setupTelemetry(cfg, "1.2.3", newLogger())
	if err != nil {
		t.Fatalf("setup telemetry: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })
	if handler == nil {
		t.Fatal("expected a metrics handler")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"go_goroutines", `service_instance_id="studio-9"`, `service_version="1.2.3"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in metrics output", want)
		}
	}
}

func TestWorkersUnavailableWithoutRegistry(t *testing.T) {
	rt := New(config.Default(), "test", newLogger())
	rec := httptest.NewRecorder()
	rt.handleWorkers(rec, httptest.NewRequest(http.MethodGet, "/workers", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestWorkersListsAndFiltersByBackend(t *testing.T) {
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir()}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	startRegistry := func(id string, backends []capability.Backend) *capability.Registry {
		client, err := bus.Connect(context.Background(), id, config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, newLogger())
		if err != nil {
			t.Fatalf("connect %s: %v", id, err)
		}
		t.Cleanup(client.Close)
		reg, err := capability.NewRegistry(context.Background(), config.NodeConfig{ID: id, HeartbeatInterval: 100, HeartbeatTimeout: 1000}, backends, 1, client, newLogger())
		if err != nil {
			t.Fatalf("registry %s: %v", id, err)
		}
		t.Cleanup(reg.Close)
		return reg
	}

	rt := New(config.Default(), "test", newLogger())
	rt.registry = startRegistry("worker-a", capability.Backends(config.Default()))
	startRegistry("worker-b", []capability.Backend{{Kind: "tts", Mode: "elevenlabs"}})

	list := func(target string) []capability.Worker {
		t.Helper()
		rec := httptest.NewRecorder()
		rt.handleWorkers(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from %s, got %d", target, rec.Code)
		}
		var workers []capability.Worker
		if err := json.NewDecoder(rec.Body).Decode(&workers); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
		return workers
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(list("/workers")) != 2 {
		if time.Now().After(deadline) {
			t.Fatal("workers did not discover each other")
		}
		time.Sleep(20 * time.Millisecond)
	}

	eleven := list("/workers?backend=tts.elevenlabs")
	if len(eleven) != 1 || eleven[0].ID != "worker-b" {
		t.Fatalf("unexpected elevenlabs workers %+v", eleven)
	}
	if none := list("/workers?backend=tts.kokoro"); len(none) != 0 {
		t.Fatalf("expected no workers, got %+v", none)
	}
}
