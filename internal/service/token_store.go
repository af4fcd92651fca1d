package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/propfront/propfront/internal/repository"
	"github.com/propfront/propfront/internal/security"
)

const restoreExpiryLeeway = 30 * time.Second

// TokenStore owns the bearer token: the in-memory copy and its durable
// copy move together. The session store reads it once at construction and
// is its only writer afterwards.
type TokenStore struct {
	mu     sync.RWMutex
	repo   repository.TokenRepository
	logger *slog.Logger
	token  string
}

// NewTokenStore restores the persisted token. A JWT that has already
// expired is deleted instead of being restored.
func NewTokenStore(ctx context.Context, repo repository.TokenRepository, logger *slog.Logger) (*TokenStore, error) {
	if repo == nil {
		repo = repository.NewMemoryTokenRepository("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &TokenStore{repo: repo, logger: logger}
	tok, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	tok = strings.TrimSpace(tok)
	if tok != "" && security.TokenExpired(tok, time.Now(), restoreExpiryLeeway) {
		logger.InfoContext(ctx, "discarding expired persisted token")
		if err := repo.Delete(ctx); err != nil {
			logger.WarnContext(ctx, "delete expired token failed", "error", err)
		}
		tok = ""
	}
	s.token = tok
	return s, nil
}

func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the token. A persistence failure is returned but the
// in-memory token is still updated so the running process stays usable.
func (s *TokenStore) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return s.repo.Save(ctx, token)
}

func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return s.repo.Delete(ctx)
}
