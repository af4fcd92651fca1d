package service

import (
	"context"

	"github.com/propfront/propfront/internal/domain"
)

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, cred domain.Credential) (domain.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// ProfileService must reject an expired or revoked token instead of
// returning an empty profile.
type ProfileService interface {
	GetProfile(ctx context.Context, token string) (domain.RawProfile, error)
}

// SessionReader is the read surface access checks depend on.
type SessionReader interface {
	Snapshot() domain.Session
}

// SessionCache is the part of the cache coordinator the session store drives.
type SessionCache interface {
	ClearUserScoped(ctx context.Context) error
	ClearAll(ctx context.Context) error
}
