package service

import (
	"context"
	"sync"
	"time"

	"github.com/propfront/propfront/internal/domain"
)

// CachedQuery is a cached response body. Stale entries are still returned
// so callers can render them while a background refetch runs.
type CachedQuery struct {
	Value []byte
	Stale bool
}

type QueryCacheStore interface {
	Get(ctx context.Context, cacheDomain domain.CacheDomain, key string) (CachedQuery, bool, error)
	Set(ctx context.Context, cacheDomain domain.CacheDomain, key string, value []byte, ttl time.Duration) error
	RemoveQueries(ctx context.Context, cacheDomain domain.CacheDomain) error
	InvalidateQueries(ctx context.Context, cacheDomain domain.CacheDomain) error
	Clear(ctx context.Context) error
}

type NoopQueryCacheStore struct{}

func NewNoopQueryCacheStore() *NoopQueryCacheStore {
	return &NoopQueryCacheStore{}
}

func (s *NoopQueryCacheStore) Get(context.Context, domain.CacheDomain, string) (CachedQuery, bool, error) {
	return CachedQuery{}, false, nil
}

func (s *NoopQueryCacheStore) Set(context.Context, domain.CacheDomain, string, []byte, time.Duration) error {
	return nil
}

func (s *NoopQueryCacheStore) RemoveQueries(context.Context, domain.CacheDomain) error {
	return nil
}

func (s *NoopQueryCacheStore) InvalidateQueries(context.Context, domain.CacheDomain) error {
	return nil
}

func (s *NoopQueryCacheStore) Clear(context.Context) error {
	return nil
}

type queryCacheEntry struct {
	value     []byte
	epoch     uint64
	expiresAt time.Time
}

type InMemoryQueryCacheStore struct {
	mu     sync.RWMutex
	store  map[domain.CacheDomain]map[string]queryCacheEntry
	epochs map[domain.CacheDomain]uint64
}

func NewInMemoryQueryCacheStore() *InMemoryQueryCacheStore {
	return &InMemoryQueryCacheStore{
		store:  make(map[domain.CacheDomain]map[string]queryCacheEntry),
		epochs: make(map[domain.CacheDomain]uint64),
	}
}

func (s *InMemoryQueryCacheStore) Get(_ context.Context, cacheDomain domain.CacheDomain, key string) (CachedQuery, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	entries, ok := s.store[cacheDomain]
	if !ok {
		s.mu.RUnlock()
		return CachedQuery{}, false, nil
	}
	entry, ok := entries[key]
	epoch := s.epochs[cacheDomain]
	s.mu.RUnlock()
	if !ok {
		return CachedQuery{}, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		if entries2, ok2 := s.store[cacheDomain]; ok2 {
			delete(entries2, key)
			if len(entries2) == 0 {
				delete(s.store, cacheDomain)
			}
		}
		s.mu.Unlock()
		return CachedQuery{}, false, nil
	}
	return CachedQuery{
		Value: append([]byte(nil), entry.value...),
		Stale: entry.epoch < epoch,
	}, true, nil
}

func (s *InMemoryQueryCacheStore) Set(_ context.Context, cacheDomain domain.CacheDomain, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.store[cacheDomain]
	if !ok {
		entries = make(map[string]queryCacheEntry)
		s.store[cacheDomain] = entries
	}
	entries[key] = queryCacheEntry{
		value:     append([]byte(nil), value...),
		epoch:     s.epochs[cacheDomain],
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *InMemoryQueryCacheStore) RemoveQueries(_ context.Context, cacheDomain domain.CacheDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, cacheDomain)
	return nil
}

func (s *InMemoryQueryCacheStore) InvalidateQueries(_ context.Context, cacheDomain domain.CacheDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[cacheDomain]++
	return nil
}

func (s *InMemoryQueryCacheStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = make(map[domain.CacheDomain]map[string]queryCacheEntry)
	return nil
}

// Len reports how many live entries a domain holds.
func (s *InMemoryQueryCacheStore) Len(cacheDomain domain.CacheDomain) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.store[cacheDomain])
}
