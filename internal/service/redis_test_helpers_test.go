package service

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testQueryCachePrefix = "qc_test"

type redisQueryCacheFixture struct {
	server *miniredis.Miniredis
	client *redis.Client
	store  *RedisQueryCacheStore
}

// newRedisQueryCacheFixture runs a miniredis instance with a query cache
// store on top of it; both are torn down with the test.
func newRedisQueryCacheFixture(t *testing.T) redisQueryCacheFixture {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisQueryCacheFixture{
		server: server,
		client: client,
		store:  NewRedisQueryCacheStore(client, testQueryCachePrefix),
	}
}
