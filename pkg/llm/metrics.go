package llm

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// callMetrics holds lazily-initialized OTel instruments for LLM calls
// (spec.md §6.2 — per-call token and latency accounting feeds the
// orchestrator's cost/performance visibility).
type callMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *callMetrics
)

func initCallMetrics() *callMetrics {
	metricsOnce.Do(func() {
		m := otel.Meter("github.com/jordigilh/realestate-collector/pkg/llm")
		inputTokens, _ := m.Int64Counter("collector.llm.input_tokens",
			metric.WithDescription("LLM input tokens consumed"),
			metric.WithUnit("{token}"),
		)
		outputTokens, _ := m.Int64Counter("collector.llm.output_tokens",
			metric.WithDescription("LLM output tokens generated"),
			metric.WithUnit("{token}"),
		)
		duration, _ := m.Float64Histogram("collector.llm.call.duration",
			metric.WithDescription("LLM call duration"),
			metric.WithUnit("ms"),
		)
		metricsInst = &callMetrics{inputTokens: inputTokens, outputTokens: outputTokens, duration: duration}
	})
	return metricsInst
}

func (m *callMetrics) record(ctx context.Context, elapsed time.Duration, inputTokens, outputTokens int64, model string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("llm.model", model))
	if m.inputTokens != nil {
		m.inputTokens.Add(ctx, inputTokens, attrs)
	}
	if m.outputTokens != nil {
		m.outputTokens.Add(ctx, outputTokens, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}
