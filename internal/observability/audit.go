package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Audit logs a session event raised through the local HTTP surface.
func Audit(r *http.Request, event string, attrs ...any) {
	requestID := chimiddleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get("X-Request-Id")
	}
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestID,
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "session audit", base...)
}
