package middleware

import (
	"context"
	"net/http"

	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/service"
)

type contextKey string

const (
	SessionContextKey contextKey = "session"
)

// WithSession pins one session snapshot to the request so every check and
// handler downstream sees the same state.
func WithSession(reader service.SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), SessionContextKey, reader.Snapshot())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(domain.Session)
	return s, ok
}
