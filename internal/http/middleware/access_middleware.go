package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/propfront/propfront/internal/http/response"
	"github.com/propfront/propfront/internal/observability"
	"github.com/propfront/propfront/internal/service"
)

const loadingRetryAfter = time.Second

// RequireAccess gates a route with the access guard. The session is taken
// from the request context when WithSession ran, else read from reader.
func RequireAccess(reader service.SessionReader, req service.AccessRequirements, signInPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFromContext(r.Context())
			if !ok {
				session = reader.Snapshot()
			}
			decision := service.EvaluateAccess(session, req, r.URL.RequestURI())
			observability.RecordAccessDecision(r.Context(), string(decision.Kind))
			switch decision.Kind {
			case service.ShowContent:
				next.ServeHTTP(w, r)
			case service.ShowLoading:
				w.Header().Set("Retry-After", strconv.Itoa(int(loadingRetryAfter.Seconds())))
				response.Error(w, r, http.StatusServiceUnavailable, "SESSION_LOADING", "session is still loading", nil)
			case service.RedirectToSignIn:
				http.Redirect(w, r, SignInLocation(signInPath, decision.ReturnPath), http.StatusSeeOther)
			case service.DenyRole:
				response.Error(w, r, http.StatusForbidden, "ROLE_DENIED", "your account type cannot open this page", map[string]any{"required_roles": req.Roles})
			case service.DenyMembership:
				response.Error(w, r, http.StatusForbidden, "MEMBERSHIP_REQUIRED", "a higher membership level is required", map[string]any{"required_levels": req.MemberLevels})
			default:
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "unknown access decision", nil)
			}
		})
	}
}

// SignInLocation builds the redirect target that brings the actor back to
// returnPath after signing in.
func SignInLocation(signInPath, returnPath string) string {
	if signInPath == "" {
		signInPath = "/signin"
	}
	if returnPath == "" {
		return signInPath
	}
	return signInPath + "?return=" + url.QueryEscape(returnPath)
}
