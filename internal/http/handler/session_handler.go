package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/http/middleware"
	"github.com/propfront/propfront/internal/http/response"
	"github.com/propfront/propfront/internal/observability"
)

// SessionController is the session store surface the handlers drive.
type SessionController interface {
	Snapshot() domain.Session
	SignInWithCredential(ctx context.Context, cred domain.Credential) (domain.Session, error)
	RefreshProfile(ctx context.Context) (*domain.Profile, error)
	EnterGuestMode(ctx context.Context)
	SignOut(ctx context.Context)
	UpdateProfileFields(patch domain.ProfileUpdate)
}

type CacheInvalidator interface {
	InvalidateUserScoped(ctx context.Context) error
	InvalidateDomains(ctx context.Context, domains ...domain.CacheDomain) error
}

type SessionHandler struct {
	sessions SessionController
	cache    CacheInvalidator
	validate *validator.Validate
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionController, cache CacheInvalidator, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		sessions: sessions,
		cache:    cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.current(r))
}

func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var cred domain.Credential
	if err := decodeJSON(r, &cred); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(cred); err != nil {
		response.Error(w, r, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "credential is incomplete", validationDetails(err))
		return
	}
	snap, err := h.sessions.SignInWithCredential(r.Context(), cred)
	if err != nil {
		observability.Audit(r, "session.sign_in", "outcome", "rejected", "credential_type", cred.Type)
		response.AuthFailure(w, r, err)
		return
	}
	observability.Audit(r, "session.sign_in", "outcome", "accepted", "credential_type", cred.Type, "state", snap.State)
	response.JSON(w, r, http.StatusOK, snap)
}

func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.sessions.SignOut(r.Context())
	observability.Audit(r, "session.sign_out")
	response.JSON(w, r, http.StatusOK, h.sessions.Snapshot())
}

func (h *SessionHandler) EnterGuest(w http.ResponseWriter, r *http.Request) {
	h.sessions.EnterGuestMode(r.Context())
	observability.Audit(r, "session.guest")
	response.JSON(w, r, http.StatusOK, h.sessions.Snapshot())
}

// Refresh re-reads the profile. A rejected fetch is not an HTTP error: the
// session already shows the signed-out state the client needs.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.RefreshProfile(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "profile refresh failed", "error", err)
	}
	response.JSON(w, r, http.StatusOK, h.sessions.Snapshot())
}

func (h *SessionHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch domain.ProfileUpdate
	if err := decodeJSON(r, &patch); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if h.sessions.Snapshot().User == nil {
		response.Error(w, r, http.StatusConflict, "NO_PROFILE", "there is no profile to update", nil)
		return
	}
	h.sessions.UpdateProfileFields(patch)
	response.JSON(w, r, http.StatusOK, h.sessions.Snapshot())
}

type invalidateRequest struct {
	Domains []domain.CacheDomain `json:"domains"`
}

// InvalidateCache marks cached data stale after the actor changed it. No
// domains means every user-scoped domain.
func (h *SessionHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
			return
		}
	}
	for _, d := range req.Domains {
		if !d.IsKnown() {
			response.Error(w, r, http.StatusUnprocessableEntity, "UNKNOWN_DOMAIN", "unknown cache domain", map[string]string{"domain": string(d)})
			return
		}
	}
	var err error
	if len(req.Domains) == 0 {
		err = h.cache.InvalidateUserScoped(r.Context())
	} else {
		err = h.cache.InvalidateDomains(r.Context(), req.Domains...)
	}
	if err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", "cache invalidation failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"invalidated": req.Domains})
}

// Protected renders the content placeholder behind an access check.
func (h *SessionHandler) Protected(area string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := h.current(r)
		response.JSON(w, r, http.StatusOK, map[string]any{
			"area":  area,
			"path":  r.URL.Path,
			"actor": snap.Actor,
		})
	}
}

func (h *SessionHandler) current(r *http.Request) domain.Session {
	if snap, ok := middleware.SessionFromContext(r.Context()); ok {
		return snap
	}
	return h.sessions.Snapshot()
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
