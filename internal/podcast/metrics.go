package podcast

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

type pipelineMetrics struct {
	stageDuration metric.Float64Histogram
	jobs          metric.Int64Counter
	fragments     metric.Int64Counter
}

func newPipelineMetrics(meter metric.Meter) (*pipelineMetrics, error) {
	stageDuration, err := meter.Float64Histogram("podcast.stage.duration",
		metric.WithDescription("Time spent in each pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	jobs, err := meter.Int64Counter("podcast.jobs", metric.WithDescription("Podcast jobs finished, by outcome"))
	if err != nil {
		return nil, err
	}
	fragments, err := meter.Int64Counter("podcast.fragments", metric.WithDescription("Synthesis fragments, by result"))
	if err != nil {
		return nil, err
	}
	return &pipelineMetrics{stageDuration: stageDuration, jobs: jobs, fragments: fragments}, nil
}

func (m *pipelineMetrics) observeStage(ctx context.Context, stage Stage, took time.Duration, outcome string) {
	if m == nil || stage == "" {
		return
	}
	m.stageDuration.Record(ctx, took.Seconds(), metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("outcome", outcome),
	))
}

func (m *pipelineMetrics) observeJob(ctx context.Context, outcome string, failed Stage) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if failed != "" {
		attrs = append(attrs, attribute.String("stage", string(failed)))
	}
	m.jobs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *pipelineMetrics) observeFragments(ctx context.Context, included, skipped int) {
	if m == nil {
		return
	}
	m.fragments.Add(ctx, int64(included), metric.WithAttributes(attribute.String("result", "included")))
	if skipped > 0 {
		m.fragments.Add(ctx, int64(skipped), metric.WithAttributes(attribute.String("result", "skipped")))
	}
}
