package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueueMetrics holds metric instruments for queue throughput.
// Initialize once at startup and reuse for the process lifetime.
type QueueMetrics struct {
	JobsPushed  metric.Int64Counter     // Jobs enqueued
	JobsPopped  metric.Int64Counter     // Jobs reserved by workers
	JobsFailed  metric.Int64Counter     // Jobs archived to failed_jobs
	JobDuration metric.Float64Histogram // Handler execution latency
}

// NewQueueMetrics creates a QueueMetrics instance with pre-configured instruments.
func NewQueueMetrics() (*QueueMetrics, error) {
	meter := otel.Meter("glueful/queue")

	jobsPushed, err := meter.Int64Counter(
		"queue.jobs.pushed",
		metric.WithDescription("Total number of jobs enqueued"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	jobsPopped, err := meter.Int64Counter(
		"queue.jobs.popped",
		metric.WithDescription("Total number of jobs reserved by workers"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	jobsFailed, err := meter.Int64Counter(
		"queue.jobs.failed",
		metric.WithDescription("Total number of jobs archived after exhausting attempts"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"queue.job.duration",
		metric.WithDescription("Job handler execution time"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000),
	)
	if err != nil {
		return nil, err
	}

	return &QueueMetrics{
		JobsPushed:  jobsPushed,
		JobsPopped:  jobsPopped,
		JobsFailed:  jobsFailed,
		JobDuration: jobDuration,
	}, nil
}

// RecordPush increments the push counter for a queue.
func (m *QueueMetrics) RecordPush(ctx context.Context, queue string, n int64) {
	if m == nil {
		return
	}
	m.JobsPushed.Add(ctx, n, metric.WithAttributes(attribute.String("queue", queue)))
}

// RecordPop increments the pop counter for a queue.
func (m *QueueMetrics) RecordPop(ctx context.Context, queue string) {
	if m == nil {
		return
	}
	m.JobsPopped.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

// RecordFail increments the failure counter for a queue.
func (m *QueueMetrics) RecordFail(ctx context.Context, queue string) {
	if m == nil {
		return
	}
	m.JobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

// RecordDuration records handler execution time for a queue.
func (m *QueueMetrics) RecordDuration(ctx context.Context, queue string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000.0
	m.JobDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("queue", queue)))
}

// AuthzMetrics holds metric instruments for authorization decisions.
type AuthzMetrics struct {
	Decisions metric.Int64Counter // can() outcomes, tagged allowed=true/false
	Integrity metric.Int64Counter // data-integrity denials (cycles, dangling refs)
}

// NewAuthzMetrics creates an AuthzMetrics instance.
func NewAuthzMetrics() (*AuthzMetrics, error) {
	meter := otel.Meter("glueful/rbac")

	decisions, err := meter.Int64Counter(
		"rbac.decisions",
		metric.WithDescription("Total number of authorization decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	integrity, err := meter.Int64Counter(
		"rbac.integrity_denials",
		metric.WithDescription("Authorization denials caused by stored-data integrity violations"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthzMetrics{Decisions: decisions, Integrity: integrity}, nil
}

// RecordDecision records a can() outcome for a permission slug.
func (m *AuthzMetrics) RecordDecision(ctx context.Context, permission string, allowed bool) {
	if m == nil {
		return
	}
	m.Decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("permission", permission),
		attribute.Bool("allowed", allowed),
	))
}

// RecordIntegrityDenial records a deny caused by corrupt stored data.
func (m *AuthzMetrics) RecordIntegrityDenial(ctx context.Context, detail string) {
	if m == nil {
		return
	}
	m.Integrity.Add(ctx, 1, metric.WithAttributes(attribute.String("detail", detail)))
}
