package store

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hotelio/admission/ratelimit"
)

// RedisStore implements ratelimit.CounterStore on a Redis sorted set per
// key: member scores are event timestamps in milliseconds, so stale-entry
// removal plus cardinality implements the sliding window. A TTL on each key
// bounds growth if a process dies mid-window.
//
// Check and Increment each run as one pre-compiled Lua script, which keeps
// each call atomic on the server while preserving the engine's documented
// two-round-trip contract. It is suitable for distributed systems where
// multiple application instances share rate-limiting state.
type RedisStore struct {
	client          redis.UniversalClient
	checkScript     *redis.Script
	incrementScript *redis.Script
}

// NewRedis creates a new RedisStore over an existing client. Both scripts
// are pre-compiled up front.
func NewRedis(client redis.UniversalClient) *RedisStore {
	const checkLua = `
		local key = KEYS[1]
		local window_ms = tonumber(ARGV[1])
		local now_ms = tonumber(ARGV[2])

		redis.call("ZREMRANGEBYSCORE", key, 0, now_ms - window_ms)
		local count = redis.call("ZCARD", key)
		local oldest = now_ms
		if count > 0 then
			local first = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
			oldest = tonumber(first[2])
		end
		return {count, oldest}
	`

	const incrementLua = `
		local key = KEYS[1]
		local window_ms = tonumber(ARGV[1])
		local now_ms = tonumber(ARGV[2])
		local member = ARGV[3]
		local ttl_ms = tonumber(ARGV[4])

		redis.call("ZADD", key, now_ms, member)
		redis.call("ZREMRANGEBYSCORE", key, 0, now_ms - window_ms)
		redis.call("PEXPIRE", key, ttl_ms)
		return redis.call("ZCARD", key)
	`

	return &RedisStore{
		client:          client,
		checkScript:     redis.NewScript(checkLua),
		incrementScript: redis.NewScript(incrementLua),
	}
}

// Check executes the sliding-window check script: prune, count, report.
// The key is not created if it does not exist.
func (s *RedisStore) Check(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (ratelimit.WindowCheckResult, error) {
	raw, err := s.checkScript.Run(ctx, s.client, []string{key}, window.Milliseconds(), now.UnixMilli()).Result()
	if err != nil {
		return ratelimit.WindowCheckResult{}, fmt.Errorf("redis check %q: %w", key, err)
	}

	count, oldestMilli, err := parsePair(raw)
	if err != nil {
		return ratelimit.WindowCheckResult{}, fmt.Errorf("redis check %q: %w", key, err)
	}

	res := ratelimit.WindowCheckResult{
		Limit:   limit,
		Current: count,
		ResetAt: now,
		Allowed: count < limit,
	}
	if count > 0 {
		res.ResetAt = time.UnixMilli(oldestMilli).Add(window)
	}
	res.Remaining = limit - count
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res, nil
}

// Increment records one uniquely stamped event and refreshes the key's TTL
// to the window plus the shared safety buffer.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	ttl := window + ratelimit.KeyTTLBuffer
	raw, err := s.incrementScript.Run(ctx, s.client, []string{key},
		window.Milliseconds(), now.UnixMilli(), eventMember(now), ttl.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis increment %q: %w", key, err)
	}
	count, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("redis increment %q: unexpected reply %T", key, raw)
	}
	return count, nil
}

// Reset deletes the key outright.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis reset %q: %w", key, err)
	}
	return nil
}

// eventMember builds a set member unique across instances, so concurrent
// increments at the same millisecond never collapse into one entry.
func eventMember(now time.Time) string {
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatInt(rand.Int63(), 36)
}

func parsePair(raw interface{}) (int64, int64, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, 0, fmt.Errorf("unexpected reply %T", raw)
	}
	count, ok := arr[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected count %T", arr[0])
	}
	oldest, ok := arr[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected oldest score %T", arr[1])
	}
	return count, oldest, nil
}
