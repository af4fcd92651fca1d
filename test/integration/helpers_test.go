package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/propfront/propfront/internal/apiclient"
	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/http/handler"
	"github.com/propfront/propfront/internal/http/middleware"
	"github.com/propfront/propfront/internal/http/router"
	"github.com/propfront/propfront/internal/repository"
	"github.com/propfront/propfront/internal/service"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// marketplace fakes the remote API. Accounts map password to profile JSON;
// the token handed out is "tok-" plus the password.
type marketplace struct {
	srv          *httptest.Server
	profileDelay atomic.Int64
	logouts      atomic.Int64

	mu       sync.Mutex
	accounts map[string]string
}

func newMarketplace(t *testing.T) *marketplace {
	t.Helper()
	m := &marketplace{accounts: map[string]string{
		"agency-pass":     `{"user_id":42,"name":"Somchai","role":"agency","member_level":"gold","verify_account":true,"current_point":100}`,
		"individual-pass": `{"id":7,"full_name":"Nok","user_type":"individual","membership":"free","is_active":true,"points":5}`,
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		m.mu.Lock()
		_, ok := m.accounts[body["password"]]
		m.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials","errors":{"password":["Invalid password"]}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"access_token": "tok-" + body["password"]}})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		m.logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v1/users/profile", func(w http.ResponseWriter, r *http.Request) {
		if d := time.Duration(m.profileDelay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		const prefix = "Bearer tok-"
		auth := r.Header.Get("Authorization")
		m.mu.Lock()
		profile, ok := "", false
		if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			profile, ok = m.accounts[auth[len(prefix):]]
		}
		m.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthenticated."}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":` + profile + `}`))
	})
	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

// bff is one running session front end backed by redis and sqlite.
type bff struct {
	url    string
	client *http.Client
	store  *service.SessionStore
	redis  *redis.Client
	mini   *miniredis.Miniredis
	tokens repository.TokenRepository
}

type bffOptions struct {
	api    *marketplace
	mini   *miniredis.Miniredis
	dbPath string
}

func newBFF(t *testing.T, opts bffOptions) *bff {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if opts.api == nil {
		opts.api = newMarketplace(t)
	}
	if opts.mini == nil {
		opts.mini = miniredis.RunT(t)
	}
	if opts.dbPath == "" {
		opts.dbPath = filepath.Join(t.TempDir(), "propfront.db")
	}

	rdb := redis.NewClient(&redis.Options{Addr: opts.mini.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := repository.OpenGormDB("sqlite", opts.dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	tokenRepo, err := repository.NewGormTokenRepository(db)
	if err != nil {
		t.Fatalf("token repository: %v", err)
	}
	tokens, err := service.NewTokenStore(ctx, tokenRepo, logger)
	if err != nil {
		t.Fatalf("token store: %v", err)
	}
	client, err := apiclient.New(apiclient.Options{BaseURL: opts.api.srv.URL, Timeout: 5 * time.Second, Logger: logger})
	if err != nil {
		t.Fatalf("api client: %v", err)
	}
	coordinator := service.NewCacheCoordinator(service.NewRedisQueryCacheStore(rdb, "itest:query"), logger)
	store := service.NewSessionStore(tokens, client, client, coordinator, logger)

	h := router.NewRouter(router.Dependencies{
		SessionHandler:   handler.NewSessionHandler(store, coordinator, logger),
		Sessions:         store,
		SignInPath:       "/signin",
		SignInRateLimit:  50,
		SignInRateWindow: time.Minute,
		Readiness: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	httpClient := &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &bff{url: srv.URL, client: httpClient, store: store, redis: rdb, mini: opts.mini, tokens: tokenRepo}
}

// csrf fetches the session once so the jar holds the csrf cookie and
// returns its value.
func (b *bff) csrf(t *testing.T) string {
	t.Helper()
	resp, _ := b.do(t, http.MethodGet, "/api/v1/session", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session read failed: %d", resp.StatusCode)
	}
	u, _ := url.Parse(b.url)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == middleware.CSRFCookieName {
			return c.Value
		}
	}
	t.Fatal("csrf cookie not issued")
	return ""
}

func (b *bff) do(t *testing.T, method, path string, body any, csrf string) (*http.Response, apiEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, b.url+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrf != "" {
		req.Header.Set(middleware.CSRFHeaderName, csrf)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env apiEnvelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return resp, env
}

// dataKeys lists cached entries of one domain still present in redis.
func (b *bff) dataKeys(d domain.CacheDomain) []string {
	prefix := "itest:query:data:" + string(d) + ":"
	var keys []string
	for _, k := range b.mini.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}
