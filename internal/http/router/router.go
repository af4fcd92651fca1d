package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/http/handler"
	"github.com/propfront/propfront/internal/http/middleware"
	"github.com/propfront/propfront/internal/http/response"
	"github.com/propfront/propfront/internal/service"
)

// ReadinessCheck reports whether backing stores are reachable.
type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	SessionHandler   *handler.SessionHandler
	Sessions         service.SessionReader
	SignInPath       string
	SignInRateLimit  int
	SignInRateWindow time.Duration
	// Readiness nil means always ready.
	Readiness      ReadinessCheck
	EnableOTelHTTP bool
}

// protectedAreas maps each gated route prefix to what it requires.
var protectedAreas = []struct {
	prefix string
	req    service.AccessRequirements
}{
	{prefix: "/my", req: service.AccessRequirements{}},
	{prefix: "/agency", req: service.AccessRequirements{Roles: []domain.Role{domain.RoleAgency, domain.RoleDeveloper}}},
	{prefix: "/premium", req: service.AccessRequirements{MemberLevels: []domain.MemberLevel{domain.MemberGold, domain.MemberPlatinum}}},
	{prefix: "/listings", req: service.AccessRequirements{GuestAllowed: true}},
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(1 << 20))

	signInLimiter := middleware.NewSignInThrottle(dep.SignInRateLimit, dep.SignInRateWindow).Middleware()

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		if err := dep.Readiness(r.Context()); err != nil {
			response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]string{"error": err.Error()})
			return
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	h := dep.SessionHandler
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.WithSession(dep.Sessions))
		r.With(middleware.IssueCSRFCookie).Get("/session", h.Get)
		r.Group(func(r chi.Router) {
			r.Use(middleware.CSRFMiddleware)
			r.With(signInLimiter).Post("/session/signin", h.SignIn)
			r.Post("/session/signout", h.SignOut)
			r.Post("/session/guest", h.EnterGuest)
			r.Post("/session/refresh", h.Refresh)
			r.Patch("/session/profile", h.UpdateProfile)
			r.Post("/cache/invalidate", h.InvalidateCache)
		})
	})

	for _, area := range protectedAreas {
		r.Route(area.prefix, func(r chi.Router) {
			r.Use(middleware.WithSession(dep.Sessions))
			r.Use(middleware.RequireAccess(dep.Sessions, area.req, dep.SignInPath))
			r.Get("/", h.Protected(area.prefix))
			r.Get("/*", h.Protected(area.prefix))
		})
	}

	var out http.Handler = r
	if dep.EnableOTelHTTP {
		out = otelhttp.NewHandler(r, "http.server")
	}
	return out
}
