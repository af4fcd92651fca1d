package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TokenRepository persists the bearer token and nothing else; the profile
// is always re-fetched after a restart.
type TokenRepository interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	SavedAt     time.Time `json:"saved_at"`
}

type FileTokenRepository struct {
	mu   sync.Mutex
	path string
}

func NewFileTokenRepository(path string) *FileTokenRepository {
	if strings.TrimSpace(path) == "" {
		path = DefaultTokenPath()
	}
	return &FileTokenRepository{path: path}
}

// DefaultTokenPath is $XDG_CONFIG_HOME/propfront/token.json, falling back
// to ~/.config/propfront/token.json.
func DefaultTokenPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "propfront", "token.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "propfront", "token.json")
}

func (r *FileTokenRepository) Path() string { return r.path }

func (r *FileTokenRepository) Load(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", fmt.Errorf("decode token file: %w", err)
	}
	return strings.TrimSpace(tf.AccessToken), nil
}

func (r *FileTokenRepository) Save(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	payload, err := json.MarshalIndent(tokenFile{AccessToken: token, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (r *FileTokenRepository) Delete(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// MemoryTokenRepository keeps the token for the life of the process only.
type MemoryTokenRepository struct {
	mu    sync.Mutex
	token string
}

func NewMemoryTokenRepository(initial string) *MemoryTokenRepository {
	return &MemoryTokenRepository{token: initial}
}

func (r *MemoryTokenRepository) Load(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token, nil
}

func (r *MemoryTokenRepository) Save(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
	return nil
}

func (r *MemoryTokenRepository) Delete(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = ""
	return nil
}
