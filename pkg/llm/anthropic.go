package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jordigilh/realestate-collector/pkg/corekinds"
)

var tracer = otel.Tracer("github.com/jordigilh/realestate-collector/pkg/llm")

// anthropicClient is the concrete Client backing the collector pipeline's
// LLM.invoke step (spec.md §4.D step 2), wrapping anthropic-sdk-go with
// retry-with-backoff and a circuit breaker over the Transient failure
// class (spec.md §4.D "Failure classification").
type anthropicClient struct {
	client  anthropic.Client
	model   anthropic.Model
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	metrics *callMetrics
}

// NewClient builds the production Client. A circuit breaker opens after
// 5 consecutive Transient classifications and half-opens after 30s,
// shedding load from an LLM backend that is already failing rather than
// adding retry pressure on top of it.
func NewClient(cfg Config) Client {
	cfg = cfg.withDefaults()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-invoke",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var result corekinds.Result
			return err == nil || !(errors.As(err, &result) && result.Retryable())
		},
	})

	return &anthropicClient{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   anthropic.Model(cfg.Model),
		cfg:     cfg,
		breaker: breaker,
		metrics: initCallMetrics(),
	}
}

// Invoke sends prompt to the model, retrying Transient failures with
// exponential backoff up to cfg.RetryCount times (spec.md §4.D:
// "Transient: LLM timeout, LLM 5xx, network error").
func (c *anthropicClient) Invoke(ctx context.Context, prompt string) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callWithRetry(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", corekinds.TransientErr(err, "llm circuit breaker open")
		}
		return "", err
	}
	return result.(string), nil
}

func (c *anthropicClient) callWithRetry(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", string(c.model)))

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Second * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", corekinds.FatalErr(ctx.Err(), "llm invoke cancelled")
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		start := time.Now()
		message, err := c.client.Messages.New(callCtx, params)
		elapsed := time.Since(start)
		cancel()

		if err == nil {
			c.metrics.record(ctx, elapsed, message.Usage.InputTokens, message.Usage.OutputTokens, string(c.model))
			span.SetAttributes(attribute.Int("llm.attempts", attempt+1))
			return extractText(message)
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", corekinds.FatalErr(ctx.Err(), "llm invoke cancelled")
		}
		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", corekinds.FatalErr(err, "llm invoke failed")
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", corekinds.TransientErr(lastErr, fmt.Sprintf("llm invoke failed after %d attempts", c.cfg.RetryCount+1))
}

func extractText(message *anthropic.Message) (string, error) {
	if len(message.Content) == 0 {
		return "", corekinds.FatalErr(errors.New("empty response"), "llm response had no content blocks")
	}
	block := message.Content[0]
	if block.Type != "text" {
		return "", corekinds.FatalErr(fmt.Errorf("block type %q", block.Type), "llm response block is not text")
	}
	return block.Text, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
