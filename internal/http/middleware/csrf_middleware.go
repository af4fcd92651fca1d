package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/propfront/propfront/internal/http/response"
	"github.com/propfront/propfront/internal/observability"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRFMiddleware enforces the double-submit check on state-changing
// requests: the csrf_token cookie must equal the X-CSRF-Token header.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		group := csrfPathGroup(r.URL.Path)
		cookie, err := r.Cookie(CSRFCookieName)
		if err != nil || cookie.Value == "" {
			observability.RecordCSRFRejection(r.Context(), group, "missing_cookie")
			response.Error(w, r, http.StatusForbidden, "CSRF_REJECTED", "missing csrf cookie", nil)
			return
		}
		header := r.Header.Get(CSRFHeaderName)
		if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
			observability.RecordCSRFRejection(r.Context(), group, "mismatch")
			response.Error(w, r, http.StatusForbidden, "CSRF_REJECTED", "csrf token mismatch", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IssueCSRFCookie hands out a csrf_token cookie when the request has none.
func IssueCSRFCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(CSRFCookieName); err != nil || c.Value == "" {
			http.SetCookie(w, &http.Cookie{
				Name:     CSRFCookieName,
				Value:    uuid.NewString(),
				Path:     "/",
				SameSite: http.SameSiteStrictMode,
			})
		}
		next.ServeHTTP(w, r)
	})
}

// csrfPathGroup keeps metric cardinality bounded: at most two segments
// after /api/v1.
func csrfPathGroup(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "root"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "v1" {
		return "api/" + parts[2]
	}
	return parts[0]
}
