package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// poolMetrics holds lazily-initialized OTel instruments for the worker
// pool, mirroring pkg/llm/metrics.go's convention so every component's
// instrumentation shares one exporter pipeline.
type poolMetrics struct {
	leaseDuration metric.Float64Histogram
	jobDuration   metric.Float64Histogram
	retries       metric.Int64Counter
	failures      metric.Int64Counter
}

var (
	poolMetricsOnce sync.Once
	poolMetricsInst *poolMetrics
)

func initPoolMetrics() *poolMetrics {
	poolMetricsOnce.Do(func() {
		m := otel.Meter("github.com/jordigilh/realestate-collector/pkg/orchestrator")
		leaseDuration, _ := m.Float64Histogram("collector.orchestrator.lease.duration",
			metric.WithDescription("time a job spent waiting in pending before being leased"),
			metric.WithUnit("ms"),
		)
		jobDuration, _ := m.Float64Histogram("collector.orchestrator.job.duration",
			metric.WithDescription("job execution wall time"),
			metric.WithUnit("ms"),
		)
		retries, _ := m.Int64Counter("collector.orchestrator.job.retries",
			metric.WithDescription("transient failures rescheduled for retry"),
		)
		failures, _ := m.Int64Counter("collector.orchestrator.job.failures",
			metric.WithDescription("jobs that reached a terminal failed state"),
		)
		poolMetricsInst = &poolMetrics{leaseDuration: leaseDuration, jobDuration: jobDuration, retries: retries, failures: failures}
	})
	return poolMetricsInst
}

func (m *poolMetrics) recordJob(ctx context.Context, elapsed time.Duration, entityType, jobType string) {
	if m == nil || m.jobDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("job.entity_type", entityType),
		attribute.String("job.type", jobType),
	)
	m.jobDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

func (m *poolMetrics) recordRetry(ctx context.Context, entityType string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("job.entity_type", entityType)))
}

func (m *poolMetrics) recordFailure(ctx context.Context, entityType string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("job.entity_type", entityType)))
}
