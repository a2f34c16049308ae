package testing

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

// RedisClient connects to the redis used by integration tests, TRAINLOG_TEST_REDIS_ADDR
// (default localhost:6379) with optional TRAINLOG_TEST_REDIS_PASS.
// The returned context expires after timeout; the client is closed and the keys
// matching keyPattern are removed when the test ends.
func RedisClient(t *testing.T, keyPattern string, timeout time.Duration) (context.Context, *redis.Client) {
	t.Helper()

	addr := os.Getenv("TRAINLOG_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	t.Logf("using redis: [%s]", addr)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("TRAINLOG_TEST_REDIS_PASS"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	require.NoError(t, rdb.Ping(ctx).Err())

	t.Cleanup(func() {
		defer cancel()
		defer rdb.Close()

		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		keys, err := rdb.Keys(cleanupCtx, keyPattern).Result()
		if err != nil {
			t.Logf("list test keys: %s", err)
			return
		}
		if len(keys) > 0 {
			if err := rdb.Del(cleanupCtx, keys...).Err(); err != nil {
				t.Logf("delete test keys: %s", err)
			}
		}
	})

	return ctx, rdb
}
