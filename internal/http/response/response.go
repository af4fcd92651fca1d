package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/propfront/propfront/internal/service"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	write(w, status, envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

// AuthFailure renders a sign-in failure. The message of an *AuthError is
// already fit for the actor, so it is passed through unchanged.
func AuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *service.AuthError
	if !errors.As(err, &authErr) {
		Error(w, r, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
		return
	}
	switch authErr.Kind {
	case service.CredentialError:
		Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", authErr.Message, nil)
	case service.ProfileFetchError:
		Error(w, r, http.StatusUnauthorized, "PROFILE_UNAVAILABLE", authErr.Message, nil)
	default:
		Error(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", authErr.Message, nil)
	}
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
