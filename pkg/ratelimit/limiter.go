// Package ratelimit bounds concurrent LLM calls to the configured
// token-bucket size (spec.md §5: "LLM client: rate-limited by a
// process-wide token bucket (default 10 concurrent, configurable);
// excess workers suspend on the bucket").
package ratelimit

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter is the narrow interface llm.WithLimiter wraps a Client with,
// letting either the in-memory or the Redis-backed bucket stand in.
type Limiter interface {
	// Acquire blocks until a slot is free or ctx is cancelled.
	Acquire(ctx context.Context) error
	// Release returns a previously acquired slot.
	Release()
}

// Semaphore is the process-local default: a weighted semaphore sized to
// llm_concurrency. It is the right choice for a single orchestrator
// process; pkg/ratelimit.Redis is the horizontally-scaled alternative.
type Semaphore struct {
	sem *semaphore.Weighted
}

// NewSemaphore builds a process-local Limiter with capacity slots.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{sem: semaphore.NewWeighted(int64(capacity))}
}

func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

func (s *Semaphore) Release() {
	s.sem.Release(1)
}
