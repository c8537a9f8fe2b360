// Package llm is the collector's boundary to the language model that
// turns a search prompt into entity candidates (spec.md §6.2). It owns
// prompt rendering and the retrying, circuit-broken call to the vendor
// API; schema validation of the returned JSON is pkg/collector's job.
package llm

import (
	"context"
	"time"
)

// Client is the narrow interface pkg/collector depends on, letting
// tests substitute a stub instead of a live Anthropic connection.
type Client interface {
	// Invoke sends prompt to the model and returns its raw text response
	// (spec.md §6.2: "receives a JSON string"). The caller is responsible
	// for schema validation.
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Config configures the concrete Anthropic-backed Client.
type Config struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	RetryCount  int
	Temperature float32
	MaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	return c
}
