package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

// submitJob hands an episode to a running podcastd over the bus instead of
// producing it in-process.
func submitJob(args []string) error {
	var (
		configPath     string
		text           string
		style          string
		name           string
		longform       bool
		transcriptOnly bool
		wait           bool
		timeout        time.Duration
	)
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to runtime configuration file")
	fs.StringVar(&text, "text", "", "Inline source text")
	fs.StringVar(&style, "style", "", "Predefined conversation style")
	fs.StringVar(&name, "name", "", "Podcast name override")
	fs.BoolVar(&longform, "longform", false, "Generate a long-form transcript in chunks")
	fs.BoolVar(&transcriptOnly, "transcript-only", false, "Write the transcript and skip audio")
	fs.BoolVar(&wait, "wait", false, "Wait for the job to finish")
	fs.DurationVar(&timeout, "timeout", 30*time.Minute, "How long -wait waits")
	fs.Parse(args)

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	req := protocol.PodcastRequest{
		JobID:          uuid.NewString(),
		Sources:        fs.Args(),
		Text:           text,
		TranscriptOnly: transcriptOnly,
		Style:          style,
		Name:           name,
	}
	if longform {
		req.Longform = &longform
	}
	if req.Text == "" && len(req.Sources) == 0 {
		return errors.New("no input: pass source paths or -text")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bus.Connect(ctx, "podcast-cli", cfg.Bus, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	// Subscribe before submitting so a fast job cannot finish unseen.
	events := make(chan *nats.Msg, 64)
	if wait {
		for _, subject := range []string{protocol.SubjectPodcastProgress, protocol.SubjectPodcastDone, protocol.SubjectPodcastFailed} {
			sub, err := client.Conn().ChanSubscribe(subject, events)
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
			defer sub.Unsubscribe()
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Bus.ConnectTimeout)*time.Millisecond+5*time.Second)
	defer cancel()
	var ack protocol.PodcastAck
	if err := client.RequestJSON(reqCtx, protocol.SubjectPodcastRequest, req, &ack); err != nil {
		return err
	}
	if ack.Error != "" {
		return fmt.Errorf("request rejected: %s", ack.Error)
	}
	fmt.Println("job:", ack.JobID)
	if !wait {
		return nil
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, timeout)
	defer cancelWait()
	return awaitJob(waitCtx, ack.JobID, events)
}

func awaitJob(ctx context.Context, jobID string, events <-chan *nats.Msg) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for job %s: %w", jobID, ctx.Err())
		case msg := <-events:
			switch msg.Subject {
			case protocol.SubjectPodcastProgress:
				var evt protocol.PodcastProgress
				if json.Unmarshal(msg.Data, &evt) != nil || evt.JobID != jobID {
					continue
				}
				fmt.Fprintf(os.Stderr, "[%s] %s\n", evt.Stage, evt.Detail)
			case protocol.SubjectPodcastDone:
				var evt protocol.PodcastDone
				if json.Unmarshal(msg.Data, &evt) != nil || evt.JobID != jobID {
					continue
				}
				fmt.Println("transcript:", evt.TranscriptPath)
				if evt.AudioPath != "" {
					fmt.Println("audio:", evt.AudioPath)
				}
				return nil
			case protocol.SubjectPodcastFailed:
				var evt protocol.PodcastFailed
				if json.Unmarshal(msg.Data, &evt) != nil || evt.JobID != jobID {
					continue
				}
				return fmt.Errorf("job failed in %s: %s", evt.Stage, evt.Error)
			}
		}
	}
}
