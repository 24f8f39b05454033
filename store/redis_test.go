package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveRedis connects to the Redis named by REDIS_ADDR, or skips the test.
// The sliding-window scripts only run server-side, so these tests need a
// real instance.
func liveRedis(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping live Redis tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client)
}

func testKey(t *testing.T) string {
	return fmt.Sprintf("admission-test:%s:%d", t.Name(), time.Now().UnixNano())
}

func TestRedisSlidingWindow(t *testing.T) {
	s := liveRedis(t)
	ctx := context.Background()
	key := testKey(t)
	t.Cleanup(func() { _ = s.Reset(context.Background(), key) })

	now := time.Now()
	for i := 1; i <= 3; i++ {
		count, err := s.Increment(ctx, key, 10*time.Second, now.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, int64(i), count)
	}

	res, err := s.Check(ctx, key, 3, 10*time.Second, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Current)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)

	// All three events have left the window.
	res, err = s.Check(ctx, key, 3, 10*time.Second, now.Add(11*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Current)
	assert.True(t, res.Allowed)
}

func TestRedisCheckIsIdempotent(t *testing.T) {
	s := liveRedis(t)
	ctx := context.Background()
	key := testKey(t)
	t.Cleanup(func() { _ = s.Reset(context.Background(), key) })

	now := time.Now()
	_, err := s.Increment(ctx, key, time.Minute, now)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res, err := s.Check(ctx, key, 10, time.Minute, now.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Current)
	}
}

func TestRedisReset(t *testing.T) {
	s := liveRedis(t)
	ctx := context.Background()
	key := testKey(t)

	now := time.Now()
	_, err := s.Increment(ctx, key, time.Minute, now)
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx, key))

	res, err := s.Check(ctx, key, 1, time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Current)
}

func TestRedisCheckDoesNotCreateKeys(t *testing.T) {
	s := liveRedis(t)
	ctx := context.Background()
	key := testKey(t)

	res, err := s.Check(ctx, key, 5, time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Current)
	assert.True(t, res.Allowed)

	exists, err := s.client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisKeyTTL(t *testing.T) {
	s := liveRedis(t)
	ctx := context.Background()
	key := testKey(t)
	t.Cleanup(func() { _ = s.Reset(context.Background(), key) })

	_, err := s.Increment(ctx, key, 10*time.Second, time.Now())
	require.NoError(t, err)

	ttl, err := s.client.PTTL(ctx, key).Result()
	require.NoError(t, err)
	// TTL is the window plus the safety buffer.
	assert.Greater(t, ttl, 10*time.Second)
	assert.LessOrEqual(t, ttl, 70*time.Second)
}

func TestEventMemberUniqueness(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		m := eventMember(now)
		_, dup := seen[m]
		require.False(t, dup, "duplicate member %q", m)
		seen[m] = struct{}{}
	}
}
