package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/observability"
)

// SessionStore is the single source of truth for who operates the client.
//
// Every transition that replaces the actor advances generation once it takes
// effect: sign-out and guest entry immediately, sign-in only after the
// server accepted the credential. Asynchronous results remember the
// generation they were issued under and are dropped once it has moved on,
// so a slow profile fetch can never bring back a session that was signed
// out meanwhile. A rejected sign-in leaves generation alone.
//
// Intents are numbered in the order they were issued. A sign-in that
// succeeds after a later-issued intent has already taken effect is dropped,
// so the last intent wins regardless of which network call returns first.
type SessionStore struct {
	tokens   *TokenStore
	auth     Authenticator
	profiles ProfileService
	cache    SessionCache
	logger   *slog.Logger

	mu         sync.Mutex
	user       *domain.Profile
	loading    bool
	fetching   int
	generation uint64
	revision   uint64
	issued     uint64
	applied    uint64

	subMu       sync.Mutex
	subscribers map[uint64]func(domain.Session)
	nextSubID   uint64

	deliveryMu    sync.Mutex
	lastPublished uint64
}

func NewSessionStore(tokens *TokenStore, auth Authenticator, profiles ProfileService, cache SessionCache, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		tokens:      tokens,
		auth:        auth,
		profiles:    profiles,
		cache:       cache,
		logger:      logger,
		loading:     true,
		subscribers: make(map[uint64]func(domain.Session)),
	}
}

func (s *SessionStore) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Restore resolves the state at process start: a persisted token moves the
// store through LoadingProfile, no token settles it on SignedOut.
func (s *SessionStore) Restore(ctx context.Context) (domain.Session, error) {
	_, err := s.RefreshProfile(ctx)
	snap := s.Snapshot()
	s.logTransition(ctx, "restore", snap)
	return snap, err
}

// RefreshProfile re-reads the profile for the held token. Without a token it
// settles on the signed-out shape and returns nil, nil. A rejected fetch
// drops both the user and the token; the returned *AuthError is for logging
// only since the state already reflects it.
func (s *SessionStore) RefreshProfile(ctx context.Context) (*domain.Profile, error) {
	s.mu.Lock()
	gen := s.generation
	token := s.tokens.Token()
	if token == "" {
		s.user = nil
		s.loading = false
		snap := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap)
		observability.RecordSessionTransition(ctx, "refresh_profile", "no_token")
		return nil, nil
	}
	s.loading = true
	s.fetching++
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	return s.fetchProfile(ctx, gen, token)
}

func (s *SessionStore) fetchProfile(ctx context.Context, gen uint64, token string) (*domain.Profile, error) {
	ctx, span := observability.StartSpan(ctx, "session.refresh_profile")
	defer span.End()

	raw, fetchErr := s.profiles.GetProfile(ctx, token)

	s.mu.Lock()
	s.fetching--
	if s.generation != gen || s.tokens.Token() != token {
		current := s.user.Clone()
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "dropping superseded profile result", "issued_generation", gen)
		observability.RecordSessionTransition(ctx, "refresh_profile", "superseded")
		return current, nil
	}

	var (
		profile *domain.Profile
		err     error
	)
	if fetchErr != nil {
		s.user = nil
		if clearErr := s.tokens.Clear(context.WithoutCancel(ctx)); clearErr != nil {
			s.logger.WarnContext(ctx, "delete persisted token failed", "error", clearErr)
		}
		err = newProfileFetchError(fetchErr)
	} else {
		s.user = NormalizeProfile(raw)
		profile = s.user.Clone()
	}
	s.loading = false
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	if err != nil {
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, "profile fetch failed")
		s.logger.WarnContext(ctx, "profile fetch failed, session cleared", "error", fetchErr)
		observability.RecordSessionTransition(ctx, "refresh_profile", "failure")
	} else {
		observability.RecordSessionTransition(ctx, "refresh_profile", "success")
	}
	s.logTransition(ctx, "refresh_profile", snap)
	return profile, err
}

// SignInWithCredential trades cred for a token, clears user-scoped cache
// data and loads the new actor's profile. Only authenticator failures come
// back as errors, and a rejected attempt leaves the state as it was; a
// profile failure afterwards just leaves the store signed out.
func (s *SessionStore) SignInWithCredential(ctx context.Context, cred domain.Credential) (domain.Session, error) {
	ctx, span := observability.StartSpan(ctx, "session.sign_in", attribute.String("credential.type", string(cred.Type)))
	defer span.End()

	s.mu.Lock()
	s.issued++
	intent := s.issued
	s.mu.Unlock()

	result, err := s.auth.Login(ctx, cred)
	if err == nil && strings.TrimSpace(result.Token) == "" {
		err = ErrMissingToken
	}
	if err != nil {
		authErr := newSignInError(err)
		s.mu.Lock()
		var snap domain.Session
		if s.loading && s.fetching == 0 {
			// nothing in flight will settle the initial loading state
			s.loading = false
			snap = s.changedLocked()
		} else {
			snap = s.snapshotLocked()
		}
		s.mu.Unlock()
		s.publish(snap)

		span.RecordError(err)
		span.SetStatus(codes.Error, string(authErr.Kind))
		s.logger.WarnContext(ctx, "sign-in rejected", "kind", authErr.Kind, "error", err)
		observability.RecordSessionTransition(ctx, "sign_in", string(authErr.Kind))
		return snap, authErr
	}

	s.mu.Lock()
	if intent < s.applied {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "dropping superseded sign-in result", "intent", intent)
		observability.RecordSessionTransition(ctx, "sign_in", "superseded")
		return snap, nil
	}
	gen := s.advanceLocked(intent)
	// s.mu stays held across the cache and token writes so no reader sees
	// the new actor next to the previous actor's cached data.
	local := context.WithoutCancel(ctx)
	if err := s.cache.ClearUserScoped(local); err != nil {
		s.logger.WarnContext(ctx, "clear user-scoped cache on sign-in failed", "error", err)
	}
	if err := s.tokens.Set(local, result.Token); err != nil {
		s.logger.WarnContext(ctx, "persist token failed", "error", err)
	}
	s.user = nil
	s.loading = true
	s.fetching++
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)
	s.logTransition(ctx, "sign_in", snap)
	observability.RecordSessionTransition(ctx, "sign_in", "success")

	if _, err := s.fetchProfile(ctx, gen, result.Token); err != nil {
		s.logger.WarnContext(ctx, "profile unavailable after sign-in", "error", err)
	}
	return s.Snapshot(), nil
}

// EnterGuestMode swaps in the guest profile. It never fails.
func (s *SessionStore) EnterGuestMode(ctx context.Context) {
	s.mu.Lock()
	s.issued++
	s.advanceLocked(s.issued)
	// Held across the cache clear on purpose: readers must not see the guest
	// while user-scoped entries of the previous actor are still cached.
	local := context.WithoutCancel(ctx)
	if err := s.cache.ClearUserScoped(local); err != nil {
		s.logger.WarnContext(ctx, "clear user-scoped cache on guest entry failed", "error", err)
	}
	if err := s.tokens.Clear(local); err != nil {
		s.logger.WarnContext(ctx, "delete persisted token failed", "error", err)
	}
	s.user = domain.GuestProfile()
	s.loading = false
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)
	s.logTransition(ctx, "enter_guest", snap)
	observability.RecordSessionTransition(ctx, "enter_guest", "success")
}

// SignOut tells the server (best effort), then clears every cached domain
// before the cleared session becomes visible to readers.
func (s *SessionStore) SignOut(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "session.sign_out")
	defer span.End()

	s.mu.Lock()
	s.issued++
	gen := s.advanceLocked(s.issued)
	token := s.tokens.Token()
	s.mu.Unlock()

	if token != "" {
		if err := s.auth.Logout(ctx, token); err != nil {
			span.RecordError(err)
			s.logger.WarnContext(ctx, "remote logout failed, clearing local session anyway", "error", err)
		}
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "sign-out superseded by a newer transition", "issued_generation", gen)
		observability.RecordSessionTransition(ctx, "sign_out", "superseded")
		return
	}
	// Held across ClearAll on purpose: the signed-out state must not become
	// visible while cached data of the old actor is still readable.
	local := context.WithoutCancel(ctx)
	if err := s.cache.ClearAll(local); err != nil {
		s.logger.ErrorContext(ctx, "clear query cache on sign-out failed", "error", err)
	}
	if err := s.tokens.Clear(local); err != nil {
		s.logger.WarnContext(ctx, "delete persisted token failed", "error", err)
	}
	s.user = nil
	s.loading = false
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)
	s.logTransition(ctx, "sign_out", snap)
	observability.RecordSessionTransition(ctx, "sign_out", "success")
}

// UpdateProfileFields merges an optimistic local edit into the current
// user. Without a user it does nothing.
func (s *SessionStore) UpdateProfileFields(patch domain.ProfileUpdate) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return
	}
	updated := s.user.Clone()
	applyProfileUpdate(updated, patch)
	s.user = updated
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// Subscribe registers fn for every later state change. Calls happen outside
// the store lock, in revision order; a snapshot older than one already
// delivered is skipped. fn may unsubscribe from inside the call but must not
// start another transition on the same store.
func (s *SessionStore) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *SessionStore) publish(snap domain.Session) {
	// deliveryMu orders deliveries by revision; subMu is never held while
	// waiting on it, so a callback may unsubscribe.
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()
	if snap.Revision <= s.lastPublished {
		return
	}
	s.lastPublished = snap.Revision

	s.subMu.Lock()
	fns := make([]func(domain.Session), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// advanceLocked records intent as the latest transition to take effect and
// starts a new generation. Callers hold s.mu.
func (s *SessionStore) advanceLocked(intent uint64) uint64 {
	s.applied = intent
	s.generation++
	return s.generation
}

func (s *SessionStore) changedLocked() domain.Session {
	s.revision++
	return s.snapshotLocked()
}

func (s *SessionStore) snapshotLocked() domain.Session {
	token := s.tokens.Token()
	snap := domain.Session{
		User:       s.user.Clone(),
		Token:      token,
		IsLoading:  s.loading,
		Generation: s.generation,
		Revision:   s.revision,
	}
	switch {
	case s.user != nil && s.user.IsGuest:
		snap.Actor = domain.ActorGuest
		snap.State = domain.StateGuest
	case s.user != nil && token != "":
		snap.IsAuthenticated = true
		snap.Actor = domain.ActorMember
		snap.State = domain.StateAuthenticated
	case s.loading && token != "":
		snap.Actor = domain.ActorAnonymous
		snap.State = domain.StateLoadingProfile
	default:
		snap.Actor = domain.ActorAnonymous
		snap.State = domain.StateSignedOut
	}
	return snap
}

func (s *SessionStore) logTransition(ctx context.Context, transition string, snap domain.Session) {
	s.logger.InfoContext(ctx, "session transition",
		"transition", transition,
		"state", snap.State,
		"actor", snap.Actor,
		"generation", snap.Generation,
		"loading", snap.IsLoading,
	)
}
