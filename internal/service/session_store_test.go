package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/repository"
)

type fakeAuthenticator struct {
	mu            sync.Mutex
	loginFn       func(context.Context, domain.Credential) (domain.LoginResult, error)
	logoutErr     error
	logoutCalls   []string
	logoutStarted chan struct{}
	logoutRelease chan struct{}
}

func (f *fakeAuthenticator) Login(ctx context.Context, cred domain.Credential) (domain.LoginResult, error) {
	f.mu.Lock()
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return domain.LoginResult{}, errors.New("login not configured")
	}
	return fn(ctx, cred)
}

func (f *fakeAuthenticator) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	f.logoutCalls = append(f.logoutCalls, token)
	started, release, err := f.logoutStarted, f.logoutRelease, f.logoutErr
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return err
}

type fakeProfileService struct {
	mu       sync.Mutex
	profiles map[string]domain.RawProfile
	err      error
	started  chan struct{}
	release  chan struct{}
	calls    int
}

func (f *fakeProfileService) GetProfile(_ context.Context, token string) (domain.RawProfile, error) {
	f.mu.Lock()
	f.calls++
	started, release := f.started, f.release
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.RawProfile{}, f.err
	}
	raw, ok := f.profiles[token]
	if !ok {
		return domain.RawProfile{}, &domain.APIError{Status: 401, Message: "Unauthenticated."}
	}
	return raw, nil
}

// recordingCache records each clear and the token held at that moment.
type recordingCache struct {
	mu              sync.Mutex
	tokens          *TokenStore
	userScoped      int
	all             int
	tokenAtClearAll []string
}

func (c *recordingCache) ClearUserScoped(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userScoped++
	return nil
}

func (c *recordingCache) ClearAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all++
	c.tokenAtClearAll = append(c.tokenAtClearAll, c.tokens.Token())
	return nil
}

type sessionFixture struct {
	store    *SessionStore
	tokens   *TokenStore
	repo     *repository.MemoryTokenRepository
	auth     *fakeAuthenticator
	profiles *fakeProfileService
	cache    *recordingCache
}

func newSessionFixture(t *testing.T, persistedToken string) *sessionFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryTokenRepository(persistedToken)
	tokens, err := NewTokenStore(context.Background(), repo, logger)
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	f := &sessionFixture{
		tokens:   tokens,
		repo:     repo,
		auth:     &fakeAuthenticator{},
		profiles: &fakeProfileService{profiles: map[string]domain.RawProfile{}},
		cache:    &recordingCache{tokens: tokens},
	}
	f.store = NewSessionStore(tokens, f.auth, f.profiles, f.cache, logger)
	return f
}

func ptr[T any](v T) *T { return &v }

func memberProfile() domain.RawProfile {
	return domain.RawProfile{
		UserID:        ptr(int64(42)),
		Name:          "Somchai",
		Role:          "agency",
		MemberLevel:   "gold",
		VerifyAccount: ptr(true),
		CurrentPoint:  ptr(int64(100)),
	}
}

func loginReturning(token string) func(context.Context, domain.Credential) (domain.LoginResult, error) {
	return func(context.Context, domain.Credential) (domain.LoginResult, error) {
		return domain.LoginResult{Token: token}, nil
	}
}

var emailCred = domain.Credential{Type: domain.CredentialEmail, Email: "a@example.com", Password: "secret1"}

func TestSessionStoreInitialSnapshotIsLoadingSignedOut(t *testing.T) {
	f := newSessionFixture(t, "")
	snap := f.store.Snapshot()
	if !snap.IsLoading || snap.IsAuthenticated || snap.User != nil {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}
	if snap.State != domain.StateSignedOut {
		t.Fatalf("expected signed_out initial state, got %s", snap.State)
	}
}

func TestRestoreWithoutTokenResolvesSignedOut(t *testing.T) {
	f := newSessionFixture(t, "")
	snap, err := f.store.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if snap.IsLoading || snap.IsAuthenticated || snap.User != nil {
		t.Fatalf("expected settled signed-out snapshot, got %+v", snap)
	}
	if f.profiles.calls != 0 {
		t.Fatalf("expected no profile fetch without a token, got %d", f.profiles.calls)
	}
}

func TestRestoreWithPersistedTokenNormalizesProfile(t *testing.T) {
	f := newSessionFixture(t, "tok-restored")
	f.profiles.profiles["tok-restored"] = memberProfile()

	snap, err := f.store.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if snap.State != domain.StateAuthenticated || !snap.IsAuthenticated || snap.IsLoading {
		t.Fatalf("expected authenticated snapshot, got %+v", snap)
	}
	u := snap.User
	if u.ID != 42 || u.UserID != 42 || !u.IsActive || !u.VerifyAccount || u.PointBalance != 100 {
		t.Fatalf("unexpected normalized profile: %+v", u)
	}
	if snap.Actor != domain.ActorMember {
		t.Fatalf("expected member actor, got %s", snap.Actor)
	}
}

func TestRefreshProfileFailureClearsUserAndPersistedToken(t *testing.T) {
	f := newSessionFixture(t, "tok-revoked")

	profile, err := f.store.RefreshProfile(context.Background())
	if profile != nil {
		t.Fatalf("expected nil profile, got %+v", profile)
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != ProfileFetchError {
		t.Fatalf("expected profile fetch error, got %v", err)
	}
	snap := f.store.Snapshot()
	if snap.User != nil || snap.Token != "" || snap.IsLoading || snap.IsAuthenticated {
		t.Fatalf("expected cleared session, got %+v", snap)
	}
	if tok, _ := f.repo.Load(context.Background()); tok != "" {
		t.Fatalf("expected persisted token deleted, got %q", tok)
	}
}

func TestSignInWrongPasswordReturnsCredentialError(t *testing.T) {
	f := newSessionFixture(t, "")
	if _, err := f.store.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	f.auth.loginFn = func(context.Context, domain.Credential) (domain.LoginResult, error) {
		return domain.LoginResult{}, &domain.APIError{
			Status:  422,
			Message: "The given data was invalid.",
			FieldErrors: []domain.FieldError{
				{Field: "password", Messages: []string{"Invalid password"}},
				{Field: "email", Messages: []string{"Unknown email"}},
			},
		}
	}

	snap, err := f.store.SignInWithCredential(context.Background(), emailCred)
	if !IsCredentialError(err) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if err.Error() != "Invalid password" {
		t.Fatalf("expected first field message, got %q", err.Error())
	}
	if snap.State != domain.StateSignedOut || snap.IsAuthenticated || snap.Token != "" {
		t.Fatalf("expected signed-out state after rejected sign-in, got %+v", snap)
	}
	if f.cache.userScoped != 0 {
		t.Fatalf("rejected sign-in must not touch the cache, got %d clears", f.cache.userScoped)
	}
}

func TestSignInTransportFailureUsesDefaultMessage(t *testing.T) {
	f := newSessionFixture(t, "")
	f.auth.loginFn = func(context.Context, domain.Credential) (domain.LoginResult, error) {
		return domain.LoginResult{}, errors.New("dial tcp: connection refused")
	}

	_, err := f.store.SignInWithCredential(context.Background(), emailCred)
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != TransportError {
		t.Fatalf("expected transport error, got %v", err)
	}
	if authErr.Message != DefaultSignInErrorMessage {
		t.Fatalf("expected default message, got %q", authErr.Message)
	}
	if f.store.Snapshot().IsLoading {
		t.Fatal("failed sign-in must not leave the store loading")
	}
}

func TestSignInEmptyTokenIsTransportError(t *testing.T) {
	f := newSessionFixture(t, "")
	f.auth.loginFn = loginReturning("  ")

	_, err := f.store.SignInWithCredential(context.Background(), emailCred)
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestSignInPersistsTokenAndClearsUserScopedCache(t *testing.T) {
	f := newSessionFixture(t, "")
	f.auth.loginFn = loginReturning("tok-1")
	f.profiles.profiles["tok-1"] = memberProfile()

	snap, err := f.store.SignInWithCredential(context.Background(), emailCred)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if snap.State != domain.StateAuthenticated || snap.User.Role != domain.RoleAgency {
		t.Fatalf("expected authenticated agency member, got %+v", snap)
	}
	if tok, _ := f.repo.Load(context.Background()); tok != "tok-1" {
		t.Fatalf("expected persisted tok-1, got %q", tok)
	}
	if f.cache.userScoped != 1 || f.cache.all != 0 {
		t.Fatalf("expected one user-scoped clear, got userScoped=%d all=%d", f.cache.userScoped, f.cache.all)
	}
}

func TestSignInProfileFailureLeavesSignedOutWithoutError(t *testing.T) {
	f := newSessionFixture(t, "")
	f.auth.loginFn = loginReturning("tok-1")
	f.profiles.err = errors.New("profile endpoint down")

	snap, err := f.store.SignInWithCredential(context.Background(), emailCred)
	if err != nil {
		t.Fatalf("sign in must not surface profile failures: %v", err)
	}
	if snap.IsAuthenticated || snap.Token != "" || snap.User != nil || snap.IsLoading {
		t.Fatalf("expected signed-out snapshot, got %+v", snap)
	}
}

func TestGuestThenSignInReplacesGuestProfile(t *testing.T) {
	f := newSessionFixture(t, "")
	ctx := context.Background()

	f.store.EnterGuestMode(ctx)
	snap := f.store.Snapshot()
	if snap.State != domain.StateGuest || snap.Actor != domain.ActorGuest || snap.IsAuthenticated || snap.Token != "" {
		t.Fatalf("unexpected guest snapshot: %+v", snap)
	}
	if snap.User == nil || !snap.User.IsGuest || snap.User.Name != "Guest" {
		t.Fatalf("expected guest profile, got %+v", snap.User)
	}

	f.auth.loginFn = loginReturning("tok-1")
	f.profiles.profiles["tok-1"] = memberProfile()
	snap, err := f.store.SignInWithCredential(ctx, emailCred)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if snap.State != domain.StateAuthenticated || snap.User.IsGuest || snap.User.Name != "Somchai" {
		t.Fatalf("expected guest fully replaced, got %+v", snap.User)
	}
}

func TestEnterGuestModeWhileAuthenticatedDropsToken(t *testing.T) {
	f := newSessionFixture(t, "tok-1")
	f.profiles.profiles["tok-1"] = memberProfile()
	ctx := context.Background()
	if _, err := f.store.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	f.store.EnterGuestMode(ctx)
	snap := f.store.Snapshot()
	if snap.State != domain.StateGuest || snap.Token != "" || snap.IsLoading {
		t.Fatalf("expected guest without token, got %+v", snap)
	}
	if tok, _ := f.repo.Load(ctx); tok != "" {
		t.Fatalf("expected persisted token removed, got %q", tok)
	}
	if f.cache.userScoped != 1 {
		t.Fatalf("expected user-scoped clear on guest entry, got %d", f.cache.userScoped)
	}
}

func TestSignOutClearsSessionWhenRemoteLogoutFails(t *testing.T) {
	f := newSessionFixture(t, "tok-1")
	f.profiles.profiles["tok-1"] = memberProfile()
	ctx := context.Background()
	if _, err := f.store.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	f.auth.logoutErr = errors.New("server unreachable")

	f.store.SignOut(ctx)

	snap := f.store.Snapshot()
	if snap.Token != "" || snap.IsAuthenticated || snap.User != nil || snap.State != domain.StateSignedOut {
		t.Fatalf("expected signed-out snapshot, got %+v", snap)
	}
	if len(f.auth.logoutCalls) != 1 || f.auth.logoutCalls[0] != "tok-1" {
		t.Fatalf("expected one logout call with tok-1, got %v", f.auth.logoutCalls)
	}
	if f.cache.all != 1 {
		t.Fatalf("expected one full cache clear, got %d", f.cache.all)
	}
	if f.cache.tokenAtClearAll[0] != "tok-1" {
		t.Fatalf("cache must be cleared before the token is dropped, token was %q", f.cache.tokenAtClearAll[0])
	}
	if tok, _ := f.repo.Load(ctx); tok != "" {
		t.Fatalf("expected persisted token deleted, got %q", tok)
	}
}

func TestSignOutNotifiesOnlyAfterCacheCleared(t *testing.T) {
	f := newSessionFixture(t, "tok-1")
	f.profiles.profiles["tok-1"] = memberProfile()
	ctx := context.Background()
	if _, err := f.store.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	var clearsSeen []int
	unsubscribe := f.store.Subscribe(func(s domain.Session) {
		if s.State == domain.StateSignedOut {
			f.cache.mu.Lock()
			clearsSeen = append(clearsSeen, f.cache.all)
			f.cache.mu.Unlock()
		}
	})
	defer unsubscribe()

	f.store.SignOut(ctx)
	if len(clearsSeen) != 1 || clearsSeen[0] != 1 {
		t.Fatalf("expected signed-out notification after clear, got %v", clearsSeen)
	}
}

func TestLateRefreshDoesNotResurrectSignedOutSession(t *testing.T) {
	f := newSessionFixture(t, "tok-1")
	f.profiles.profiles["tok-1"] = memberProfile()
	f.profiles.started = make(chan struct{})
	f.profiles.release = make(chan struct{})
	ctx := context.Background()

	type result struct {
		profile *domain.Profile
		err     error
	}
	done := make(chan result, 1)
	go func() {
		p, err := f.store.RefreshProfile(ctx)
		done <- result{profile: p, err: err}
	}()

	select {
	case <-f.profiles.started:
	case <-time.After(2 * time.Second):
		t.Fatal("profile fetch never started")
	}
	f.store.SignOut(ctx)
	close(f.profiles.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not return")
	}
	if res.err != nil || res.profile != nil {
		t.Fatalf("expected superseded refresh to return nil, nil; got %+v %v", res.profile, res.err)
	}
	snap := f.store.Snapshot()
	if snap.User != nil || snap.IsAuthenticated || snap.Token != "" {
		t.Fatalf("late refresh resurrected the session: %+v", snap)
	}
}

func TestSignOutDuringSignInDropsLateLogin(t *testing.T) {
	f := newSessionFixture(t, "")
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	f.auth.loginFn = func(context.Context, domain.Credential) (domain.LoginResult, error) {
		close(started)
		<-release
		return domain.LoginResult{Token: "tok-late"}, nil
	}
	f.profiles.profiles["tok-late"] = memberProfile()

	done := make(chan error, 1)
	go func() {
		_, err := f.store.SignInWithCredential(ctx, emailCred)
		done <- err
	}()
	<-started
	f.store.SignOut(ctx)
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("superseded sign-in should not error: %v", err)
	}
	snap := f.store.Snapshot()
	if snap.Token != "" || snap.IsAuthenticated {
		t.Fatalf("superseded login must not apply, got %+v", snap)
	}
	if f.profiles.calls != 0 {
		t.Fatalf("expected no profile fetch for superseded login, got %d", f.profiles.calls)
	}
}

func rejectPassword(context.Context, domain.Credential) (domain.LoginResult, error) {
	return domain.LoginResult{}, &domain.APIError{
		Status:      422,
		FieldErrors: []domain.FieldError{{Field: "password", Messages: []string{"Invalid password"}}},
	}
}

func TestRejectedSignInDoesNotCancelPendingSignOut(t *testing.T) {
	f := newSessionFixture(t, "tok-a")
	f.profiles.profiles["tok-a"] = memberProfile()
	ctx := context.Background()
	if _, err := f.store.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	f.auth.logoutStarted = make(chan struct{})
	f.auth.logoutRelease = make(chan struct{})
	f.auth.loginFn = rejectPassword

	done := make(chan struct{})
	go func() {
		f.store.SignOut(ctx)
		close(done)
	}()
	<-f.auth.logoutStarted

	if _, err := f.store.SignInWithCredential(ctx, emailCred); !IsCredentialError(err) {
		t.Fatalf("expected credential error, got %v", err)
	}
	close(f.auth.logoutRelease)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out did not return")
	}

	snap := f.store.Snapshot()
	if snap.Token != "" || snap.IsAuthenticated || snap.State != domain.StateSignedOut {
		t.Fatalf("sign-out must still apply after a rejected sign-in, got %+v", snap)
	}
	if f.cache.all != 1 {
		t.Fatalf("expected one full cache clear, got %d", f.cache.all)
	}
	if tok, _ := f.repo.Load(ctx); tok != "" {
		t.Fatalf("expected persisted token deleted, got %q", tok)
	}
}

func TestRejectedSignInKeepsRestoreInFlight(t *testing.T) {
	f := newSessionFixture(t, "tok-a")
	f.profiles.profiles["tok-a"] = memberProfile()
	f.profiles.started = make(chan struct{})
	f.profiles.release = make(chan struct{})
	f.auth.loginFn = rejectPassword
	ctx := context.Background()

	restored := make(chan domain.Session, 1)
	go func() {
		snap, _ := f.store.Restore(ctx)
		restored <- snap
	}()
	<-f.profiles.started

	snap, err := f.store.SignInWithCredential(ctx, emailCred)
	if !IsCredentialError(err) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if snap.State != domain.StateLoadingProfile || !snap.IsLoading {
		t.Fatalf("rejected sign-in must leave the restore loading, got %+v", snap)
	}
	close(f.profiles.release)

	select {
	case snap = <-restored:
	case <-time.After(2 * time.Second):
		t.Fatal("restore did not return")
	}
	if snap.State != domain.StateAuthenticated || !snap.IsAuthenticated || snap.Token != "tok-a" || snap.User == nil {
		t.Fatalf("expected restored session, got %+v", snap)
	}
}

func TestLaterSignInWinsOverSlowerEarlierSignIn(t *testing.T) {
	f := newSessionFixture(t, "")
	f.profiles.profiles["tok-first"] = memberProfile()
	f.profiles.profiles["tok-second"] = memberProfile()
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	f.auth.loginFn = func(_ context.Context, cred domain.Credential) (domain.LoginResult, error) {
		if cred.Email == "first@example.com" {
			close(started)
			<-release
			return domain.LoginResult{Token: "tok-first"}, nil
		}
		return domain.LoginResult{Token: "tok-second"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.store.SignInWithCredential(ctx, domain.Credential{Type: domain.CredentialEmail, Email: "first@example.com", Password: "secret1"})
		done <- err
	}()
	<-started
	if _, err := f.store.SignInWithCredential(ctx, domain.Credential{Type: domain.CredentialEmail, Email: "second@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("superseded sign-in should not error: %v", err)
	}

	if snap := f.store.Snapshot(); snap.Token != "tok-second" || !snap.IsAuthenticated {
		t.Fatalf("expected the later sign-in to hold, got %+v", snap)
	}
	if tok, _ := f.repo.Load(ctx); tok != "tok-second" {
		t.Fatalf("expected tok-second persisted, got %q", tok)
	}
}

func TestUpdateProfileFieldsMergesIntoCurrentUser(t *testing.T) {
	f := newSessionFixture(t, "tok-1")
	f.profiles.profiles["tok-1"] = memberProfile()
	ctx := context.Background()

	f.store.UpdateProfileFields(domain.ProfileUpdate{Name: ptr("ignored")})
	if f.store.Snapshot().User != nil {
		t.Fatal("update without a user must be a no-op")
	}

	if _, err := f.store.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	f.store.UpdateProfileFields(domain.ProfileUpdate{
		Name:         ptr("Somchai J."),
		PointBalance: ptr(int64(250)),
	})
	u := f.store.Snapshot().User
	if u.Name != "Somchai J." || u.PointBalance != 250 || u.CurrentPoint != 250 {
		t.Fatalf("unexpected merged profile: %+v", u)
	}
	if u.Role != domain.RoleAgency || u.ID != 42 {
		t.Fatalf("unpatched fields must survive: %+v", u)
	}
}

func TestSnapshotsDoNotShareProfileState(t *testing.T) {
	f := newSessionFixture(t, "tok-1")
	raw := memberProfile()
	raw.Achievements = map[string]bool{"first_listing": true}
	f.profiles.profiles["tok-1"] = raw
	if _, err := f.store.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	snap := f.store.Snapshot()
	snap.User.Name = "mutated"
	snap.User.Achievements["first_listing"] = false

	again := f.store.Snapshot()
	if again.User.Name != "Somchai" || !again.User.Achievements["first_listing"] {
		t.Fatalf("snapshot mutation leaked into the store: %+v", again.User)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	f := newSessionFixture(t, "")
	ctx := context.Background()

	var states []domain.SessionState
	unsubscribe := f.store.Subscribe(func(s domain.Session) {
		states = append(states, s.State)
	})
	f.store.EnterGuestMode(ctx)
	f.store.SignOut(ctx)
	unsubscribe()
	f.store.EnterGuestMode(ctx)

	want := []domain.SessionState{domain.StateGuest, domain.StateSignedOut}
	if len(states) != len(want) {
		t.Fatalf("expected %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, states)
		}
	}
}

func TestSubscriberMayUnsubscribeDuringDelivery(t *testing.T) {
	f := newSessionFixture(t, "")
	ctx := context.Background()

	calls := 0
	var unsubscribe func()
	unsubscribe = f.store.Subscribe(func(domain.Session) {
		calls++
		unsubscribe()
	})
	f.store.EnterGuestMode(ctx)
	f.store.SignOut(ctx)

	if calls != 1 {
		t.Fatalf("expected a single delivery before unsubscribing, got %d", calls)
	}
}

func TestGenerationAdvancesOnActorChanges(t *testing.T) {
	f := newSessionFixture(t, "")
	ctx := context.Background()
	start := f.store.Snapshot().Generation

	f.store.EnterGuestMode(ctx)
	f.store.SignOut(ctx)
	f.store.UpdateProfileFields(domain.ProfileUpdate{Name: ptr("x")})
	f.auth.loginFn = rejectPassword
	_, _ = f.store.SignInWithCredential(ctx, emailCred)

	if got := f.store.Snapshot().Generation; got != start+2 {
		t.Fatalf("expected generation %d, got %d", start+2, got)
	}
}
