package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/propfront/propfront/internal/http/response"
	"github.com/propfront/propfront/internal/observability"
)

// SignInThrottle caps sign-in attempts per client inside a sliding window so
// a stuck form cannot hammer the marketplace login endpoint.
type SignInThrottle struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewSignInThrottle(limit int, window time.Duration) *SignInThrottle {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SignInThrottle{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an attempt for key and reports whether it may proceed; when
// it may not, retryAfter says when the oldest attempt leaves the window.
func (t *SignInThrottle) Allow(key string) (allowed bool, retryAfter time.Duration) {
	now := t.now()
	cutoff := now.Add(-t.window)

	t.mu.Lock()
	defer t.mu.Unlock()
	pruned := t.hits[key][:0]
	for _, hit := range t.hits[key] {
		if hit.After(cutoff) {
			pruned = append(pruned, hit)
		}
	}
	if len(pruned) >= t.limit {
		t.hits[key] = pruned
		retryAfter = pruned[0].Add(t.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}
	t.hits[key] = append(pruned, now)
	return true, 0
}

func (t *SignInThrottle) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := t.Allow(clientKey(r))
			if !allowed {
				observability.RecordSessionTransition(r.Context(), "sign_in", "throttled")
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many sign-in attempts", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
