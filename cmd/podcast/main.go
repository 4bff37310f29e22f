package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/conversation"
	"github.com/loqalabs/loqa-podcast/internal/podcast"
	"github.com/loqalabs/loqa-podcast/internal/source"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'run', 'submit', 'validate' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		if err := runEpisode(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "submit":
		if err := submitJob(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "validate":
		var path string
		validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
		validateCmd.StringVar(&path, "file", "conversation.yaml", "Path to conversation config")
		validateCmd.Parse(os.Args[2:])
		if _, err := conversation.Load(path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("conversation config valid")
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

type runFlags struct {
	configPath       string
	conversationPath string
	dir              string
	recursive        bool
	text             string
	transcriptFile   string
	style            string
	name             string
	outputDir        string
	longform         bool
	transcriptOnly   bool
	copyTranscript   bool
}

func runEpisode(args []string) error {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to runtime configuration file")
	fs.StringVar(&f.conversationPath, "conversation", "", "Path to conversation config")
	fs.StringVar(&f.dir, "dir", "", "Directory of source files")
	fs.BoolVar(&f.recursive, "recursive", false, "Walk -dir recursively")
	fs.StringVar(&f.text, "text", "", "Inline source text")
	fs.StringVar(&f.transcriptFile, "transcript", "", "Existing transcript to voice; skips generation")
	fs.StringVar(&f.style, "style", "", "Predefined conversation style")
	fs.StringVar(&f.name, "name", "", "Podcast name override")
	fs.StringVar(&f.outputDir, "output", "", "Output directory override")
	fs.BoolVar(&f.longform, "longform", false, "Generate a long-form transcript in chunks")
	fs.BoolVar(&f.transcriptOnly, "transcript-only", false, "Write the transcript and skip audio")
	fs.BoolVar(&f.copyTranscript, "clipboard", false, "Copy the transcript to the clipboard")
	fs.Parse(args)

	_ = godotenv.Load()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.outputDir != "" {
		cfg.Podcast.OutputDir = f.outputDir
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	conv := conversation.Default()
	if f.conversationPath != "" {
		if conv, err = conversation.Load(f.conversationPath); err != nil {
			return err
		}
	}
	if f.style != "" {
		if conv, err = conv.ApplyStyle(f.style); err != nil {
			return err
		}
	}
	if f.name != "" {
		conv.PodcastName = f.name
	}

	job := podcast.Job{
		ID:             uuid.NewString(),
		Sources:        fs.Args(),
		Text:           f.text,
		Longform:       f.longform || conv.Longform,
		TranscriptOnly: f.transcriptOnly,
		Conversation:   conv,
		Progress: func(stage podcast.Stage, detail string) {
			if detail != "" {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", stage, detail)
				return
			}
			fmt.Fprintf(os.Stderr, "[%s]\n", stage)
		},
	}
	if f.dir != "" {
		files, err := source.Directory{Recursive: f.recursive}.Files(f.dir)
		if err != nil {
			return err
		}
		job.Sources = append(job.Sources, files...)
	}
	if f.transcriptFile != "" {
		data, err := os.ReadFile(f.transcriptFile)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		job.Transcript = string(data)
	}
	if job.Transcript == "" && job.Text == "" && len(job.Sources) == 0 {
		return errors.New("no input: pass source files, -dir, -text or -transcript")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := podcast.NewPipelineFromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(ctx, job)
	if err != nil {
		return err
	}

	fmt.Println("transcript:", res.TranscriptPath)
	if res.AudioPath != "" {
		fmt.Println("audio:", res.AudioPath)
		if len(res.Track.Skipped) > 0 {
			fmt.Fprintf(os.Stderr, "warning: %d of %d fragments skipped\n", len(res.Track.Skipped), res.Fragments)
		}
		if res.Track.Degraded {
			fmt.Fprintln(os.Stderr, "warning: audio export failed, only the first fragment was kept")
		}
	}
	if f.copyTranscript {
		if err := clipboard.WriteAll(res.Transcript); err != nil {
			return fmt.Errorf("copy transcript: %w", err)
		}
		fmt.Println("transcript copied to clipboard")
	}
	return nil
}
