package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript atomically admits a caller if the bucket has not reached
// capacity, incrementing the in-flight counter and (re)setting its TTL so a
// crashed holder's slot is eventually reclaimed even without a Release. It
// returns 1 when the slot was granted, 0 when the bucket is full.
const acquireScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return 0
end
redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return 1
`

const releaseScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current <= 0 then
  return 0
end
return redis.call("DECR", KEYS[1])
`

// Redis is the horizontally-scaled Limiter: a shared counting semaphore
// keyed in Redis, used when more than one orchestrator process draws on the
// same llm_concurrency budget (spec.md §5, §6.4 llm_concurrency). Holders
// poll at pollInterval rather than blocking server-side, since Redis has no
// native "wait for capacity" primitive comparable to semaphore.Weighted.
type Redis struct {
	client       redis.UniversalClient
	key          string
	capacity     int64
	holdTTL      time.Duration
	pollInterval time.Duration
}

// NewRedis builds a distributed Limiter. capacity is the shared concurrent
// slot count; holdTTL bounds how long a slot is held before Redis reclaims
// it automatically, protecting the bucket from a process that acquires and
// then dies without releasing.
func NewRedis(client redis.UniversalClient, key string, capacity int, holdTTL time.Duration) *Redis {
	if capacity <= 0 {
		capacity = 1
	}
	if holdTTL <= 0 {
		holdTTL = 5 * time.Minute
	}
	return &Redis{
		client:       client,
		key:          key,
		capacity:     int64(capacity),
		holdTTL:      holdTTL,
		pollInterval: 50 * time.Millisecond,
	}
}

// Acquire polls for a free slot until one is granted or ctx is cancelled.
func (r *Redis) Acquire(ctx context.Context) error {
	ttlSeconds := int(r.holdTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		granted, err := redis.NewScript(acquireScript).Run(ctx, r.client, []string{r.key}, r.capacity, ttlSeconds).Int()
		if err != nil {
			return fmt.Errorf("ratelimit: redis acquire: %w", err)
		}
		if granted == 1 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release returns a previously acquired slot. It is a no-op (beyond a
// harmless DECR-floor guard) if the slot already expired via holdTTL.
func (r *Redis) Release() {
	ctx := context.Background()
	_, _ = redis.NewScript(releaseScript).Run(ctx, r.client, []string{r.key}).Result()
}
