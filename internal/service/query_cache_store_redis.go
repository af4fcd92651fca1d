package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/propfront/propfront/internal/domain"
)

type RedisQueryCacheStore struct {
	client redis.UniversalClient
	prefix string
}

type redisQueryEntry struct {
	Epoch uint64 `json:"e"`
	Value []byte `json:"v"`
}

func NewRedisQueryCacheStore(client redis.UniversalClient, prefix string) *RedisQueryCacheStore {
	if prefix == "" {
		prefix = "query_cache"
	}
	return &RedisQueryCacheStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisQueryCacheStore) Get(ctx context.Context, cacheDomain domain.CacheDomain, key string) (CachedQuery, bool, error) {
	if s.client == nil {
		return CachedQuery{}, false, nil
	}
	pipe := s.client.Pipeline()
	dataCmd := pipe.Get(ctx, s.dataKey(cacheDomain, key))
	epochCmd := pipe.Get(ctx, s.epochKey(cacheDomain))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return CachedQuery{}, false, err
	}
	raw, err := dataCmd.Bytes()
	if err == redis.Nil {
		return CachedQuery{}, false, nil
	}
	if err != nil {
		return CachedQuery{}, false, err
	}
	epoch, err := parseEpoch(epochCmd)
	if err != nil {
		return CachedQuery{}, false, err
	}
	var entry redisQueryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return CachedQuery{}, false, err
	}
	return CachedQuery{Value: entry.Value, Stale: entry.Epoch < epoch}, true, nil
}

func (s *RedisQueryCacheStore) Set(ctx context.Context, cacheDomain domain.CacheDomain, key string, value []byte, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	epoch, err := parseEpoch(s.client.Get(ctx, s.epochKey(cacheDomain)))
	if err != nil {
		return err
	}
	payload, err := json.Marshal(redisQueryEntry{Epoch: epoch, Value: value})
	if err != nil {
		return err
	}
	dataKey := s.dataKey(cacheDomain, key)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dataKey, payload, ttl)
	pipe.SAdd(ctx, s.indexKey(cacheDomain), dataKey)
	pipe.SAdd(ctx, s.registryKey(), string(cacheDomain))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisQueryCacheStore) RemoveQueries(ctx context.Context, cacheDomain domain.CacheDomain) error {
	if s.client == nil {
		return nil
	}
	indexKey := s.indexKey(cacheDomain)
	keys, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, indexKey)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisQueryCacheStore) InvalidateQueries(ctx context.Context, cacheDomain domain.CacheDomain) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.epochKey(cacheDomain)).Err()
}

func (s *RedisQueryCacheStore) Clear(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	domains, err := s.client.SMembers(ctx, s.registryKey()).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, d := range domains {
		if err := s.RemoveQueries(ctx, domain.CacheDomain(d)); err != nil {
			return fmt.Errorf("clear domain %s: %w", d, err)
		}
	}
	return s.client.Del(ctx, s.registryKey()).Err()
}

func parseEpoch(cmd *redis.StringCmd) (uint64, error) {
	v, err := cmd.Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (s *RedisQueryCacheStore) dataKey(cacheDomain domain.CacheDomain, key string) string {
	return fmt.Sprintf("%s:data:%s:%s", s.prefix, normalizeToken(string(cacheDomain)), hashToken(key))
}

func (s *RedisQueryCacheStore) indexKey(cacheDomain domain.CacheDomain) string {
	return fmt.Sprintf("%s:index:%s", s.prefix, normalizeToken(string(cacheDomain)))
}

func (s *RedisQueryCacheStore) epochKey(cacheDomain domain.CacheDomain) string {
	return fmt.Sprintf("%s:epoch:%s", s.prefix, normalizeToken(string(cacheDomain)))
}

func (s *RedisQueryCacheStore) registryKey() string {
	return s.prefix + ":domains"
}

func normalizeToken(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "none"
	}
	return strings.ReplaceAll(v, " ", "_")
}

func hashToken(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:16])
}
