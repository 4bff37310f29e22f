// Package transcript turns source content into a tagged podcast transcript.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-podcast/internal/format"
)

// Orchestrator drives chunked transcript generation against a Generator.
type Orchestrator struct {
	gen      Generator
	tmpl     *format.Template
	chunking ChunkConfig
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewOrchestrator(gen Generator, tmpl *format.Template, chunking ChunkConfig, logger *slog.Logger) (*Orchestrator, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if tmpl == nil {
		return nil, fmt.Errorf("format template is required")
	}
	if err := chunking.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		gen:      gen,
		tmpl:     tmpl,
		chunking: chunking,
		logger:   logger.With(slog.String("component", "transcript")),
		tracer:   otel.Tracer("github.com/loqalabs/loqa-podcast/transcript"),
	}, nil
}

// GenerateLongForm splits source into chunks and generates one transcript part
// per chunk, carrying the previous part forward as context. Parts are cleaned
// and joined in chunk order. Any generation error aborts the run and no
// partial transcript is returned.
func (o *Orchestrator) GenerateLongForm(ctx context.Context, source string, base Params) (string, error) {
	chunks := ChunkContent(source, o.chunking)
	ctx, span := o.tracer.Start(ctx, "transcript.longform", trace.WithAttributes(
		attribute.Int("transcript.chunks", len(chunks)),
		attribute.String("transcript.format", string(o.tmpl.Format())),
	))
	defer span.End()

	o.logger.Info("long-form generation started",
		slog.Int("chunks", len(chunks)),
		slog.Int("source_chars", len(source)),
	)

	parts := make([]string, 0, len(chunks))
	carried := ""
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return "", err
		}
		instruction := buildInstruction(o.tmpl, base, chunk.Index, chunk.Total, carried, chunk.Text)
		params := base.with(carried, instruction, chunk.Text)

		started := time.Now()
		response, err := o.gen.Generate(ctx, params)
		if err != nil {
			err = fmt.Errorf("generate part %d/%d: %w", chunk.Index+1, chunk.Total, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "generation failed")
			o.logger.Error("part generation failed",
				slog.Int("part", chunk.Index+1),
				slog.String("stage", StageFor(chunk.Index, chunk.Total).String()),
				slogError(err),
			)
			return "", err
		}
		o.logger.Debug("part generated",
			slog.Int("part", chunk.Index+1),
			slog.String("stage", StageFor(chunk.Index, chunk.Total).String()),
			slog.Int("chars", len(response)),
			slog.Duration("took", time.Since(started)),
		)

		parts = append(parts, o.tmpl.Clean(response))
		carried = response
	}

	transcript := o.tmpl.Clean(strings.Join(parts, "\n"))
	span.SetAttributes(attribute.Int("transcript.chars", len(transcript)))
	o.logger.Info("long-form generation completed", slog.Int("chars", len(transcript)))
	return transcript, nil
}

// GenerateShortForm produces a transcript with a single generation call.
func (o *Orchestrator) GenerateShortForm(ctx context.Context, source string, base Params) (string, error) {
	ctx, span := o.tracer.Start(ctx, "transcript.shortform", trace.WithAttributes(
		attribute.String("transcript.format", string(o.tmpl.Format())),
	))
	defer span.End()

	response, err := o.gen.Generate(ctx, base.with("", "", source))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", fmt.Errorf("generate transcript: %w", err)
	}
	transcript := o.tmpl.Clean(response)
	o.logger.Info("short-form generation completed", slog.Int("chars", len(transcript)))
	return transcript, nil
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
