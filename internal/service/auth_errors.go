package service

import (
	"errors"
	"net/http"

	"github.com/propfront/propfront/internal/domain"
)

type AuthErrorKind string

const (
	CredentialError   AuthErrorKind = "credential_error"
	ProfileFetchError AuthErrorKind = "profile_fetch_error"
	TransportError    AuthErrorKind = "transport_error"
)

const DefaultSignInErrorMessage = "Sign-in failed. Please try again."

var ErrMissingToken = errors.New("authenticator returned no token")

// AuthError carries a message that can be shown to the actor as-is.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// IsCredentialError reports whether err is a rejected sign-in.
func IsCredentialError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == CredentialError
}

func newSignInError(err error) *AuthError {
	kind := TransportError
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError {
		kind = CredentialError
	}
	return &AuthError{Kind: kind, Message: SignInErrorMessage(err), Err: err}
}

func newProfileFetchError(err error) *AuthError {
	msg := "profile could not be loaded"
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &AuthError{Kind: ProfileFetchError, Message: msg, Err: err}
}

// SignInErrorMessage picks the field-level message first, then the
// general message, then a generic default.
func SignInErrorMessage(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.FirstFieldMessage(); msg != "" {
			return msg
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return DefaultSignInErrorMessage
}
