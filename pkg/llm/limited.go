package llm

import "context"

// Limiter is the narrow slice of pkg/ratelimit.Limiter a rate-limited
// client needs: acquire a concurrency slot before calling the vendor API,
// release it after. *ratelimit.Semaphore and *ratelimit.Redis both
// satisfy this.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// rateLimited wraps a Client so every Invoke call first acquires a slot
// from limit, bounding the number of concurrent vendor calls to the
// configured llm_concurrency (spec.md §5, §6.4) regardless of how many
// orchestrator workers are calling concurrently.
type rateLimited struct {
	inner Client
	limit Limiter
}

// WithLimiter wraps client so Invoke blocks on limit.Acquire before
// calling through, and always releases afterward.
func WithLimiter(client Client, limit Limiter) Client {
	if limit == nil {
		return client
	}
	return &rateLimited{inner: client, limit: limit}
}

func (r *rateLimited) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := r.limit.Acquire(ctx); err != nil {
		return "", err
	}
	defer r.limit.Release()
	return r.inner.Invoke(ctx, prompt)
}
