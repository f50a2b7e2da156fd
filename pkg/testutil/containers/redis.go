//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"onboarding/internal/platform/config"
	platformredis "onboarding/internal/platform/redis"
)

// StartRedis runs a throwaway Redis and connects to it through the same
// client constructor the server uses. Both are torn down with the test.
func StartRedis(t *testing.T) *platformredis.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	server, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { _ = server.Terminate(context.Background()) })

	url, err := server.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis url: %v", err)
	}

	client, err := platformredis.New(ctx, config.RedisConfig{
		URL:         url,
		PoolSize:    4,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// ResetRedis empties the database so suites start from no buckets and no
// refresh tokens.
func ResetRedis(t *testing.T, client *platformredis.Client) {
	t.Helper()
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
}
