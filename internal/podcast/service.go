package podcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/conversation"
	"github.com/loqalabs/loqa-podcast/internal/eventstore"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, job Job) (Result, error)
}

// Service accepts podcast requests from the bus and runs them with bounded
// concurrency.
type Service struct {
	cfg    config.PodcastConfig
	bus    *bus.Client
	runner Runner
	store  *eventstore.Store
	conv   conversation.Config
	sub    *nats.Subscription
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ready  atomic.Bool
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.PodcastConfig, busClient *bus.Client, runner Runner, store *eventstore.Store, conv conversation.Config, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	workers := cfg.MaxConcurrentJobs
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		runner: runner,
		store:  store,
		conv:   conv,
		sem:    make(chan struct{}, workers),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(slog.String("component", "podcast-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.QueueSubscribe(protocol.SubjectPodcastRequest, protocol.QueuePodcastWorkers, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.ready.Store(true)
	return nil
}

// Close stops accepting requests, cancels running jobs and waits for them.
func (s *Service) Close() {
	s.ready.Store(false)
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready.Load()
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.PodcastRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode podcast request", slogError(err))
		s.respond(msg, protocol.PodcastAck{Error: "invalid request: " + err.Error()})
		return
	}
	job, err := s.jobFor(req)
	if err != nil {
		s.logger.Warn("rejected podcast request", slogError(err))
		s.respond(msg, protocol.PodcastAck{JobID: req.JobID, Error: err.Error()})
		s.publish(protocol.SubjectPodcastFailed, protocol.PodcastFailed{
			JobID:     req.JobID,
			Stage:     string(StageInput),
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}
	s.respond(msg, protocol.PodcastAck{JobID: job.ID})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}
		defer func() { <-s.sem }()
		s.runJob(job, describeSource(req))
	}()
}

func (s *Service) jobFor(req protocol.PodcastRequest) (Job, error) {
	if len(req.Sources) == 0 && strings.TrimSpace(req.Text) == "" {
		return Job{}, errors.New("request needs sources or text")
	}
	conv := s.conv
	if req.Style != "" {
		styled, err := conv.ApplyStyle(req.Style)
		if err != nil {
			return Job{}, err
		}
		conv = styled
	}
	if req.Name != "" {
		conv.PodcastName = req.Name
	}
	longform := conv.Longform
	if req.Longform != nil {
		longform = *req.Longform
	}
	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	}
	return Job{
		ID:             id,
		Sources:        req.Sources,
		Text:           req.Text,
		Longform:       longform,
		TranscriptOnly: req.TranscriptOnly,
		Conversation:   conv,
	}, nil
}

func (s *Service) runJob(job Job, src string) {
	ctx := s.ctx
	if s.cfg.JobTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.JobTimeoutSeconds)*time.Second)
		defer cancel()
	}
	logger := s.logger.With(slog.String("job_id", job.ID))

	// Bookkeeping outlives a cancelled job so the failure is still recorded.
	storeCtx := context.WithoutCancel(ctx)
	if err := s.store.CreateJob(storeCtx, job.ID, src); err != nil {
		logger.Warn("failed to record job", slogError(err))
	}

	var current Stage
	job.Progress = func(stage Stage, detail string) {
		current = stage
		s.record(storeCtx, job.ID, stage, "stage.started", detail)
		if err := s.store.UpdateJob(storeCtx, job.ID, eventstore.StatusRunning, string(stage), ""); err != nil {
			logger.Warn("failed to update job", slogError(err))
		}
		s.publish(protocol.SubjectPodcastProgress, protocol.PodcastProgress{
			JobID:     job.ID,
			Stage:     string(stage),
			Detail:    detail,
			Timestamp: time.Now().UTC(),
		})
	}

	res, err := s.runner.Run(ctx, job)
	if err != nil {
		stage := FailedStage(err)
		if stage == "" {
			stage = current
		}
		s.record(storeCtx, job.ID, stage, "job.failed", err.Error())
		if uerr := s.store.UpdateJob(storeCtx, job.ID, eventstore.StatusFailed, string(stage), err.Error()); uerr != nil {
			logger.Warn("failed to update job", slogError(uerr))
		}
		s.publish(protocol.SubjectPodcastFailed, protocol.PodcastFailed{
			JobID:     job.ID,
			Stage:     string(stage),
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	done := protocol.PodcastDone{
		JobID:          job.ID,
		TranscriptPath: res.TranscriptPath,
		AudioPath:      res.AudioPath,
		Fragments:      res.Fragments,
		Skipped:        res.Track.Skipped,
		Degraded:       res.Track.Degraded,
		DurationMS:     res.Duration.Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}
	payload, _ := json.Marshal(done)
	s.recordPayload(storeCtx, job.ID, StageOutput, "job.completed", payload)
	if err := s.store.UpdateJob(storeCtx, job.ID, eventstore.StatusSucceeded, string(StageOutput), ""); err != nil {
		logger.Warn("failed to update job", slogError(err))
	}
	s.publish(protocol.SubjectPodcastDone, done)
	logger.Info("podcast job completed", slog.Duration("took", res.Duration))
}

func (s *Service) record(ctx context.Context, jobID string, stage Stage, typ, detail string) {
	var payload []byte
	if detail != "" {
		payload = []byte(detail)
	}
	s.recordPayload(ctx, jobID, stage, typ, payload)
}

func (s *Service) recordPayload(ctx context.Context, jobID string, stage Stage, typ string, payload []byte) {
	err := s.store.AppendEvent(ctx, eventstore.Event{
		JobID:   jobID,
		Stage:   string(stage),
		Type:    typ,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("failed to record job event", slog.String("job_id", jobID), slogError(err))
	}
}

func (s *Service) publish(subject string, v any) {
	if err := s.bus.PublishJSON(subject, v); err != nil {
		s.logger.Warn("failed to publish", slog.String("subject", subject), slogError(err))
	}
}

func (s *Service) respond(msg *nats.Msg, a protocol.PodcastAck) {
	if err := s.bus.RespondJSON(msg, a); err != nil {
		s.logger.Warn("failed to respond to request", slogError(err))
	}
}

func describeSource(req protocol.PodcastRequest) string {
	if len(req.Sources) > 0 {
		return strings.Join(req.Sources, ",")
	}
	return "inline text"
}
