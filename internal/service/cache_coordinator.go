package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/observability"
)

const cacheCommandConcurrency = 4

// CacheCoordinator evicts or expires cached query data when the actor
// changes. It only issues per-domain commands and never reads entries.
type CacheCoordinator struct {
	store  QueryCacheStore
	logger *slog.Logger
}

func NewCacheCoordinator(store QueryCacheStore, logger *slog.Logger) *CacheCoordinator {
	if store == nil {
		store = NewNoopQueryCacheStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheCoordinator{store: store, logger: logger}
}

// ClearUserScoped evicts every actor-specific domain and leaves public ones.
func (c *CacheCoordinator) ClearUserScoped(ctx context.Context) error {
	return c.forEachDomain(ctx, "clear_user_scoped", domain.UserScopedDomains(), c.store.RemoveQueries)
}

// InvalidateUserScoped marks the same domains ClearUserScoped evicts as
// stale, keeping their entries readable until refetched.
func (c *CacheCoordinator) InvalidateUserScoped(ctx context.Context) error {
	return c.forEachDomain(ctx, "invalidate_user_scoped", domain.UserScopedDomains(), c.store.InvalidateQueries)
}

func (c *CacheCoordinator) InvalidateDomains(ctx context.Context, domains ...domain.CacheDomain) error {
	if len(domains) == 0 {
		return nil
	}
	return c.forEachDomain(ctx, "invalidate_domains", domains, c.store.InvalidateQueries)
}

// ClearAll drops every entry in every domain, public ones included.
func (c *CacheCoordinator) ClearAll(ctx context.Context) error {
	err := c.store.Clear(ctx)
	c.record(ctx, "clear_all", err)
	if err != nil {
		return fmt.Errorf("clear query cache: %w", err)
	}
	return nil
}

func (c *CacheCoordinator) forEachDomain(ctx context.Context, operation string, domains []domain.CacheDomain, fn func(context.Context, domain.CacheDomain) error) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(cacheCommandConcurrency)
	for _, d := range domains {
		g.Go(func() error {
			if err := fn(ctx, d); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s %s: %w", operation, d, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	err := errors.Join(errs...)
	c.record(ctx, operation, err)
	return err
}

func (c *CacheCoordinator) record(ctx context.Context, operation string, err error) {
	if err != nil {
		c.logger.WarnContext(ctx, "cache coordinator command failed", "operation", operation, "error", err)
		observability.RecordCacheOperation(ctx, operation, "error")
		return
	}
	c.logger.DebugContext(ctx, "cache coordinator command applied", "operation", operation)
	observability.RecordCacheOperation(ctx, operation, "success")
}
