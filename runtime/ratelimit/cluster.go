package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically increments the per-key counter and sets its
// expiry only on the increment that creates the key, so concurrent callers
// racing the same window never reset each other's expiry and the same
// caller's repeated requests within a window share one counter (§4.7
// "Concurrency": no double-issuance of capacity under concurrent access).
const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

// Cluster is a Redis-backed fixed-window limiter shared across process
// replicas, grounded on runtime/cache's RedisStore (same client/prefix
// shape) and the teacher pack's per-key window counter
// (marcus-qen-legator/internal/controlplane/auth/ratelimit.go), moved from
// an in-process map to a Redis INCR/PEXPIRE script so the window is
// coordinated across every replica sharing the store.
type Cluster struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

var _ Limiter = (*Cluster)(nil)

// NewCluster creates a Cluster limiter allowing limit requests per key
// every window, coordinated through client.
func NewCluster(client *redis.Client, prefix string, limit int, window time.Duration) *Cluster {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Cluster{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow increments key's counter for the current window and reports
// whether the result stays within the configured limit.
func (c *Cluster) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	count, err := c.client.Eval(ctx, fixedWindowScript, []string{formatKey(c.prefix, key)}, c.window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, err
	}
	if count <= c.limit {
		return true, 0, nil
	}
	ttl, err := c.client.PTTL(ctx, formatKey(c.prefix, key)).Result()
	if err != nil || ttl <= 0 {
		return false, c.window, nil
	}
	return false, ttl, nil
}
