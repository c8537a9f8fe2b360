package orchestrator

import (
	"math"
	"math/rand"
	"time"
)

// backoff implements spec.md §4.E(4) literally:
// "min(60s·2^(attempts-1), 1h)" with ±10% jitter. attempts is the job's
// attempt count after the failing run (i.e. the value set by Lease).
func backoff(attempts int, base, cap time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	raw := float64(base) * math.Pow(2, float64(attempts-1))
	if capped := float64(cap); raw > capped {
		raw = capped
	}
	jitter := raw * (rand.Float64()*0.2 - 0.1)
	d := time.Duration(raw + jitter)
	if d < 0 {
		d = 0
	}
	return d
}
