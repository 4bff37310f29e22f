package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
)

const (
	SubjectAnnounce        = "podcast.worker.announce"
	SubjectHeartbeatPrefix = "podcast.worker.heartbeat."
)

// Backend is one pipeline dependency a worker can serve, such as "llm" or "tts".
type Backend struct {
	Kind  string `json:"kind"`
	Mode  string `json:"mode"`
	Model string `json:"model,omitempty"`
}

func (b Backend) Name() string {
	return b.Kind + "." + b.Mode
}

type Worker struct {
	ID       string    `json:"id"`
	Backends []Backend `json:"backends"`
	MaxJobs  int       `json:"max_jobs"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
}

type announceMessage struct {
	WorkerID  string    `json:"worker_id"`
	Backends  []Backend `json:"backends"`
	MaxJobs   int       `json:"max_jobs"`
	Timestamp time.Time `json:"timestamp"`
}

type heartbeatMessage struct {
	WorkerID  string    `json:"worker_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Backends lists what a worker built from cfg will advertise.
func Backends(cfg config.Config) []Backend {
	return []Backend{
		{Kind: "llm", Mode: cfg.LLM.Mode, Model: cfg.LLM.Model},
		{Kind: "tts", Mode: cfg.TTS.Mode, Model: cfg.TTS.Model},
		{Kind: "audio", Mode: cfg.Audio.Codec},
	}
}

// Registry announces the local worker on the bus and tracks every worker it
// hears from. A worker that misses heartbeats past the timeout is unhealthy.
type Registry struct {
	cfg      config.NodeConfig
	self     announceMessage
	log      *slog.Logger
	bus      *bus.Client
	mu       sync.RWMutex
	workers  map[string]*Worker
	cancel   context.CancelFunc
	subs     []*nats.Subscription
	meter    metric.Meter
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewRegistry(ctx context.Context, cfg config.NodeConfig, backends []Backend, maxJobs int, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	self := announceMessage{
		WorkerID: cfg.ID,
		Backends: append([]Backend(nil), backends...),
		MaxJobs:  maxJobs,
	}
	r := &Registry{
		cfg:      cfg,
		self:     self,
		log:      log.With(slog.String("component", "worker-registry")),
		bus:      busClient,
		workers:  make(map[string]*Worker),
		meter:    otel.Meter("github.com/loqalabs/loqa-podcast/capability"),
		cancel:   cancel,
		interval: time.Duration(cfg.HeartbeatInterval) * time.Millisecond,
		timeout:  time.Duration(cfg.HeartbeatTimeout) * time.Millisecond,
		now:      time.Now,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.Close()
		return nil, err
	}

	go r.run(ctx)

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce worker", slog.String("error", err.Error()))
	}
	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
	r.subs = nil
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(SubjectAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(SubjectHeartbeatPrefix+"*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)
	return nil
}

func (r *Registry) run(ctx context.Context) {
	heartbeat := time.NewTicker(r.interval)
	defer heartbeat.Stop()
	health := time.NewTicker(time.Second)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		case <-health.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) announce() error {
	msg := r.self
	msg.Timestamp = r.now().UTC()
	// Record ourselves first so readiness does not wait on the round trip.
	r.update(msg)
	return r.bus.PublishJSON(SubjectAnnounce, msg)
}

func (r *Registry) publishHeartbeat() error {
	return r.bus.PublishJSON(SubjectHeartbeatPrefix+r.cfg.ID, heartbeatMessage{WorkerID: r.cfg.ID, Timestamp: r.now().UTC()})
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement announceMessage
	if err := json.Unmarshal(msg.Data, &announcement); err != nil || announcement.WorkerID == "" {
		r.log.Warn("invalid announce message", slog.String("subject", msg.Subject))
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = r.now().UTC()
	}
	if announcement.WorkerID == r.cfg.ID {
		r.update(announcement)
		return
	}
	r.mu.RLock()
	prev, ok := r.workers[announcement.WorkerID]
	known := ok && len(prev.Backends) > 0
	r.mu.RUnlock()
	r.update(announcement)

	// Answer a newcomer so it learns about this worker before our next heartbeat.
	if !known {
		if err := r.announce(); err != nil {
			r.log.Warn("failed to answer announce", slog.String("error", err.Error()))
		}
	}
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb heartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil || hb.WorkerID == "" {
		r.log.Warn("invalid heartbeat message", slog.String("subject", msg.Subject))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = r.now().UTC()
	}
	r.update(announceMessage{WorkerID: hb.WorkerID, Timestamp: hb.Timestamp})
}

func (r *Registry) update(msg announceMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[msg.WorkerID]
	if !ok {
		w = &Worker{ID: msg.WorkerID}
		r.workers[msg.WorkerID] = w
	}
	if len(msg.Backends) > 0 {
		w.Backends = msg.Backends
	}
	if msg.MaxJobs > 0 {
		w.MaxJobs = msg.MaxJobs
	}
	if msg.Timestamp.After(w.LastSeen) {
		w.LastSeen = msg.Timestamp
	}
	w.Healthy = true
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, w := range r.workers {
		if now.Sub(w.LastSeen) > r.timeout {
			w.Healthy = false
		}
	}
}

// Healthy reports whether the local worker is registered and fresh.
func (r *Registry) Healthy() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[r.cfg.ID]
	return ok && w.Healthy
}

// Query returns copies of the workers matching filter, ordered by ID.
func (r *Registry) Query(filter func(Worker) bool) []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []Worker
	for _, w := range r.workers {
		c := *w
		c.Backends = append([]Backend(nil), w.Backends...)
		if filter == nil || filter(c) {
			results = append(results, c)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

func (r *Registry) initMetrics() error {
	workers, err := r.meter.Int64ObservableGauge("podcast.workers", metric.WithDescription("Number of known podcast workers"))
	if err != nil {
		return err
	}
	healthy, err := r.meter.Int64ObservableGauge("podcast.workers.healthy", metric.WithDescription("Number of podcast workers with a fresh heartbeat"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		total, fresh := r.snapshotCounts()
		obs.ObserveInt64(workers, total)
		obs.ObserveInt64(healthy, fresh)
		return nil
	}, workers, healthy)
	return err
}

func (r *Registry) snapshotCounts() (total, healthy int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.workers {
		total++
		if w.Healthy {
			healthy++
		}
	}
	return total, healthy
}

// WithBackend matches healthy workers serving name, e.g. "tts.elevenlabs".
func WithBackend(name string) func(Worker) bool {
	return func(w Worker) bool {
		if !w.Healthy {
			return false
		}
		for _, b := range w.Backends {
			if b.Name() == name {
				return true
			}
		}
		return false
	}
}
