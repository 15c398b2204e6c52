package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/internal/infrastructure/external/oauth"
	"github.com/jkcollege/school-portal/internal/infrastructure/persistence/memory"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeGateway struct {
	mu sync.Mutex

	users      map[string]string // email -> user id
	gate       chan struct{}     // when set, SignInWithPassword waits on it
	setErr     error
	refreshErr error
	signUpErr  error
	signOutErr error
	expiresIn  time.Duration

	signOuts  []string
	refreshes int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		users:     map[string]string{"ada@school.test": "u-ada"},
		expiresIn: time.Hour,
	}
}

func (g *fakeGateway) session(userID, access string) *session.AuthSession {
	return &session.AuthSession{
		Tokens: session.Tokens{
			AccessToken:  access,
			RefreshToken: "refresh-" + userID,
			ExpiresAt:    time.Now().Add(g.expiresIn),
		},
		User: session.AuthUser{ID: userID, Confirmed: true},
	}
}

func (g *fakeGateway) SignInWithPassword(ctx context.Context, email, password string) (*session.AuthSession, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	id, ok := g.users[email]
	if !ok || password != "secret" {
		return nil, shared.NewInvalidCredentialsError("SignInWithPassword", nil)
	}
	return g.session(id, "access-"+id), nil
}

func (g *fakeGateway) SignUp(_ context.Context, email, _, fullName string) (*session.AuthUser, error) {
	if g.signUpErr != nil {
		return nil, g.signUpErr
	}
	return &session.AuthUser{ID: "u-new", Email: email, FullName: fullName}, nil
}

func (g *fakeGateway) AuthorizeURL(_ context.Context, provider, redirectURL string) (string, error) {
	return "https://auth.school.test/authorize?provider=" + provider + "&redirect_to=" + redirectURL, nil
}

func (g *fakeGateway) SetSession(_ context.Context, accessToken, _ string) (*session.AuthSession, error) {
	if g.setErr != nil {
		return nil, g.setErr
	}
	return g.session("u-ada", accessToken), nil
}

func (g *fakeGateway) RefreshSession(_ context.Context, refreshToken string) (*session.AuthSession, error) {
	g.mu.Lock()
	g.refreshes++
	g.mu.Unlock()
	if g.refreshErr != nil {
		return nil, g.refreshErr
	}
	s := g.session("u-ada", "access-refreshed")
	s.Tokens.ExpiresAt = time.Now().Add(time.Hour)
	return s, nil
}

func (g *fakeGateway) GetUser(_ context.Context, _ string) (*session.AuthUser, error) {
	return &session.AuthUser{ID: "u-ada"}, nil
}

func (g *fakeGateway) SignOut(_ context.Context, accessToken string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signOuts = append(g.signOuts, accessToken)
	return g.signOutErr
}

func (g *fakeGateway) revoked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.signOuts...)
}

type fakeProfiles struct {
	mu        sync.Mutex
	byID      map[string]*session.Profile
	getErr    error
	createErr error
	created   []session.Profile
}

func (p *fakeProfiles) GetByID(_ context.Context, userID string) (*session.Profile, error) {
	if p.getErr != nil {
		return nil, p.getErr
	}
	if prof, ok := p.byID[userID]; ok {
		return prof, nil
	}
	return nil, shared.NewDomainError("test", "GetByID", shared.ErrNotFound, "no profile")
}

func (p *fakeProfiles) Create(_ context.Context, prof *session.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, *prof)
	return p.createErr
}

type recordingBus struct {
	mu     sync.Mutex
	events []shared.EventType
}

func (b *recordingBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event.EventType())
	return nil
}

func (b *recordingBus) types() []shared.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]shared.EventType(nil), b.events...)
}

type fakeBrowser struct {
	callback string
	err      error
	opened   string
}

func (b *fakeBrowser) Authorize(_ context.Context, authorizeURL string) (string, error) {
	b.opened = authorizeURL
	return b.callback, b.err
}

type harness struct {
	resolver *Resolver
	gateway  *fakeGateway
	profiles *fakeProfiles
	store    *memory.Store
	bus      *recordingBus
	browser  *fakeBrowser
	metrics  *Metrics
}

func newHarness(t *testing.T, serverRole session.Role, opts ...func(*Dependencies, *Config)) *harness {
	t.Helper()

	h := &harness{
		gateway:  newFakeGateway(),
		profiles: &fakeProfiles{byID: map[string]*session.Profile{}},
		store:    memory.NewStore(),
		bus:      &recordingBus{},
		browser:  &fakeBrowser{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	if serverRole != session.RoleNone {
		h.profiles.byID["u-ada"] = &session.Profile{ID: "u-ada", Role: serverRole}
	}

	deps := Dependencies{
		Gateway:       h.gateway,
		Profiles:      h.profiles,
		Store:         h.store,
		Browser:       h.browser,
		ParseCallback: oauth.Tokens,
		Events:        h.bus,
		Metrics:       h.metrics,
	}
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&deps, &config)
	}

	r, err := NewResolver(deps, config)
	require.NoError(t, err)
	h.resolver = r
	return h
}

func (h *harness) signIn(t *testing.T, role session.Role) (session.Session, error) {
	t.Helper()
	return h.resolver.SignIn(context.Background(), SignInCommand{
		Email:    "ada@school.test",
		Password: "secret",
		Role:     role,
	})
}

func withStore(store *memory.Store) func(*Dependencies, *Config) {
	return func(d *Dependencies, _ *Config) { d.Store = store }
}

// ══════════════════════════════════════════════════════════════════════════════
// CONSTRUCTION
// ══════════════════════════════════════════════════════════════════════════════

func TestNewResolver_RequiresDependencies(t *testing.T) {
	_, err := NewResolver(Dependencies{}, DefaultConfig())
	assert.Error(t, err)

	_, err = NewResolver(Dependencies{
		Gateway:  newFakeGateway(),
		Profiles: &fakeProfiles{},
		Store:    memory.NewStore(),
		Browser:  &fakeBrowser{},
	}, DefaultConfig())
	assert.Error(t, err, "a browser without a callback parser is rejected")
}

func TestResolver_StartsUnknown(t *testing.T) {
	h := newHarness(t, session.RoleNone)

	s := h.resolver.Session()
	assert.Equal(t, session.StateUnknown, s.State)
	assert.False(t, s.Authenticated)
	assert.Equal(t, session.DestinationSplash, s.Destination())
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGN IN
// ══════════════════════════════════════════════════════════════════════════════

func TestSignIn_RoleResolution(t *testing.T) {
	tests := []struct {
		name      string
		requested session.Role
		server    session.Role
		want      session.Role
	}{
		{"admin verified", session.RoleAdmin, session.RoleAdmin, session.RoleAdmin},
		{"admin enters as teacher", session.RoleTeacher, session.RoleAdmin, session.RoleTeacher},
		{"student request honored", session.RoleStudent, session.RoleTeacher, session.RoleStudent},
		{"no request uses profile", session.RoleNone, session.RoleTeacher, session.RoleTeacher},
		{"no profile keeps request", session.RoleTeacher, session.RoleNone, session.RoleTeacher},
		{"nothing known is student", session.RoleNone, session.RoleNone, session.RoleStudent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.server)

			s, err := h.signIn(t, tt.requested)
			require.NoError(t, err)

			assert.True(t, s.Authenticated)
			assert.Equal(t, tt.want, s.Role)
			assert.Equal(t, "u-ada", s.UserID)
			assert.True(t, s.OnboardingSeen)
			assert.Equal(t, s, h.resolver.Session())
			assert.False(t, h.resolver.IsSigningIn())

			stored, err := h.store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Role)
			assert.True(t, stored.OnboardingSeen)
			assert.Equal(t, "access-u-ada", stored.Tokens.AccessToken)
			assert.Equal(t, "u-ada", stored.Tokens.UserID)
		})
	}
}

func TestSignIn_AdminDeniedRevokesSession(t *testing.T) {
	h := newHarness(t, session.RoleTeacher)

	_, err := h.signIn(t, session.RoleAdmin)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, "Access Denied", shared.UserMessage(err).Title)

	s := h.resolver.Session()
	assert.False(t, s.Authenticated)
	assert.Equal(t, session.RoleNone, s.Role)
	assert.False(t, h.resolver.IsSigningIn())

	assert.Equal(t, []string{"access-u-ada"}, h.gateway.revoked())
	assert.Contains(t, h.bus.types(), shared.EventRoleDenied)

	stored, _ := h.store.Load(context.Background())
	assert.True(t, stored.Tokens.IsZero())
}

func TestSignIn_Validation(t *testing.T) {
	h := newHarness(t, session.RoleNone)
	ctx := context.Background()

	_, err := h.resolver.SignIn(ctx, SignInCommand{Email: "", Password: "", Role: session.RoleStudent})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "Please fill in all fields", shared.UserMessage(err).Message)

	_, err = h.resolver.SignIn(ctx, SignInCommand{Email: "not-an-email", Password: "x"})
	assert.Equal(t, "Please enter a valid email address", shared.UserMessage(err).Message)

	assert.False(t, h.resolver.IsSigningIn())
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	h := newHarness(t, session.RoleStudent)

	_, err := h.resolver.SignIn(context.Background(), SignInCommand{
		Email:    "  ADA@school.test ",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.False(t, h.resolver.Session().Authenticated)
	assert.False(t, h.resolver.IsSigningIn())
}

func TestSignIn_NormalizesEmail(t *testing.T) {
	h := newHarness(t, session.RoleStudent)

	s, err := h.resolver.SignIn(context.Background(), SignInCommand{
		Email:    "  ADA@School.Test ",
		Password: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "u-ada", s.UserID)
}

func TestSignIn_ProfileLookupFailure(t *testing.T) {
	h := newHarness(t, session.RoleStudent)
	h.profiles.getErr = shared.NewNetworkError("test", "GetByID", errors.New("dial tcp"))

	_, err := h.signIn(t, session.RoleStudent)
	assert.ErrorIs(t, err, shared.ErrNetwork)
	assert.False(t, h.resolver.Session().Authenticated)
	assert.Equal(t, []string{"access-u-ada"}, h.gateway.revoked())
}

func TestSignIn_RejectedWhileSignedIn(t *testing.T) {
	h := newHarness(t, session.RoleStudent)

	_, err := h.signIn(t, session.RoleStudent)
	require.NoError(t, err)

	_, err = h.signIn(t, session.RoleTeacher)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
	assert.Equal(t, session.RoleStudent, h.resolver.Session().Role)
}

func TestSignIn_BusyRejectsSecondAttempt(t *testing.T) {
	h := newHarness(t, session.RoleStudent)
	h.gateway.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.signIn(t, session.RoleStudent)
		done <- err
	}()

	require.Eventually(t, h.resolver.IsSigningIn, time.Second, 5*time.Millisecond)

	_, err := h.signIn(t, session.RoleStudent)
	assert.ErrorIs(t, err, shared.ErrBusy)

	_, err = h.resolver.SignInWithOAuth(context.Background(), OAuthCommand{})
	assert.ErrorIs(t, err, shared.ErrBusy)

	close(h.gateway.gate)
	require.NoError(t, <-done)
	assert.True(t, h.resolver.Session().Authenticated)
	assert.False(t, h.resolver.IsSigningIn())
}

func TestSignIn_SupersededBySignOut(t *testing.T) {
	h := newHarness(t, session.RoleStudent)
	h.gateway.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.signIn(t, session.RoleStudent)
		done <- err
	}()

	require.Eventually(t, h.resolver.IsSigningIn, time.Second, 5*time.Millisecond)

	s := h.resolver.SignOut(context.Background())
	assert.False(t, s.Authenticated)
	assert.False(t, h.resolver.IsSigningIn())

	close(h.gateway.gate)
	err := <-done
	assert.ErrorIs(t, err, shared.ErrStaleAttempt)

	assert.False(t, h.resolver.Session().Authenticated)
	assert.Equal(t, []string{"access-u-ada"}, h.gateway.revoked())

	stored, _ := h.store.Load(context.Background())
	assert.True(t, stored.Tokens.IsZero())
	assert.Equal(t, session.RoleNone, stored.Role)
}

func TestSignIn_AfterClose(t *testing.T) {
	h := newHarness(t, session.RoleStudent)
	require.NoError(t, h.resolver.Close())
	require.NoError(t, h.resolver.Close())

	_, err := h.signIn(t, session.RoleStudent)
	assert.ErrorIs(t, err, shared.ErrResolverClosed)

	_, err = h.resolver.RefreshSession(context.Background())
	assert.ErrorIs(t, err, shared.ErrResolverClosed)
}

func TestSignIn_DemoShortcut(t *testing.T) {
	h := newHarness(t, session.RoleNone, func(_ *Dependencies, c *Config) { c.DemoShortcut = true })

	s, err := h.resolver.SignIn(context.Background(), SignInCommand{Role: session.RoleTeacher})
	require.NoError(t, err)
	assert.True(t, s.Authenticated)
	assert.Equal(t, session.RoleTeacher, s.Role)
	assert.Empty(t, s.UserID)

	stored, _ := h.store.Load(context.Background())
	assert.Equal(t, session.RoleTeacher, stored.Role)
	assert.True(t, stored.Tokens.IsZero())
	assert.Contains(t, h.bus.types(), shared.EventSignedIn)
}

func TestSignIn_DemoShortcutDisabledByDefault(t *testing.T) {
	h := newHarness(t, session.RoleNone)

	_, err := h.resolver.SignIn(context.Background(), SignInCommand{Role: session.RoleTeacher})
	assert.True(t, shared.IsValidation(err))
	assert.False(t, h.resolver.Session().Authenticated)
}

// ══════════════════════════════════════════════════════════════════════════════
// OAUTH
// ══════════════════════════════════════════════════════════════════════════════

func TestSignInWithOAuth_Success(t *testing.T) {
	h := newHarness(t, session.RoleTeacher, func(_ *Dependencies, c *Config) {
		c.OAuthRedirectURL = "http://127.0.0.1:8765/auth/callback"
	})
	h.browser.callback = "http://127.0.0.1:8765/auth/callback#access_token=oauth-access&refresh_token=oauth-refresh"

	s, err := h.resolver.SignInWithOAuth(context.Background(), OAuthCommand{})
	require.NoError(t, err)

	assert.True(t, s.Authenticated)
	assert.Equal(t, session.RoleTeacher, s.Role)
	assert.Contains(t, h.browser.opened, "provider=google")

	stored, _ := h.store.Load(context.Background())
	assert.Equal(t, "oauth-access", stored.Tokens.AccessToken)
}

func TestSignInWithOAuth_Failures(t *testing.T) {
	tests := []struct {
		name     string
		callback string
		browser  error
		setErr   error
		kind     error
	}{
		{
			name:    "browser cancelled",
			browser: context.Canceled,
			kind:    shared.ErrOAuth,
		},
		{
			name:     "provider error",
			callback: "portal://auth/callback#error=access_denied&error_description=User+denied",
			kind:     shared.ErrOAuth,
		},
		{
			name:     "missing refresh token",
			callback: "portal://auth/callback#access_token=a",
			kind:     shared.ErrOAuth,
		},
		{
			name:     "session exchange rejected",
			callback: "portal://auth/callback#access_token=a&refresh_token=r",
			setErr:   shared.NewDomainError("test", "SetSession", shared.ErrInvalidFormat, "malformed"),
			kind:     shared.ErrOAuth,
		},
		{
			name:     "backend offline",
			callback: "portal://auth/callback#access_token=a&refresh_token=r",
			setErr:   shared.NewNetworkError("test", "SetSession", errors.New("dial tcp")),
			kind:     shared.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, session.RoleStudent)
			h.browser.callback = tt.callback
			h.browser.err = tt.browser
			h.gateway.setErr = tt.setErr

			_, err := h.resolver.SignInWithOAuth(context.Background(), OAuthCommand{Role: session.RoleStudent})
			assert.ErrorIs(t, err, tt.kind)
			assert.False(t, h.resolver.Session().Authenticated)
			assert.False(t, h.resolver.IsSigningIn())
		})
	}
}

func TestSignInWithOAuth_SavesRequestedRole(t *testing.T) {
	h := newHarness(t, session.RoleStudent)
	h.browser.err = context.Canceled

	_, err := h.resolver.SignInWithOAuth(context.Background(), OAuthCommand{Role: session.RoleTeacher})
	require.Error(t, err)

	stored, _ := h.store.Load(context.Background())
	assert.Equal(t, session.RoleTeacher, stored.Role)
}

func TestSignInWithOAuth_NotConfigured(t *testing.T) {
	h := newHarness(t, session.RoleStudent, func(d *Dependencies, _ *Config) {
		d.Browser = nil
		d.ParseCallback = nil
	})

	_, err := h.resolver.SignInWithOAuth(context.Background(), OAuthCommand{})
	assert.ErrorIs(t, err, shared.ErrOAuth)
	assert.Equal(t, "Google Sign In Failed", shared.UserMessage(err).Title)
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGN UP
// ══════════════════════════════════════════════════════════════════════════════

func TestSignUp_CreatesProfile(t *testing.T) {
	h := newHarness(t, session.RoleNone)

	res, err := h.resolver.SignUp(context.Background(), SignUpCommand{
		Email:       "New@School.test",
		Password:    "secret",
		DisplayName: "Ada King Lovelace",
		Role:        session.RoleTeacher,
	})
	require.NoError(t, err)

	assert.Equal(t, "u-new", res.UserID)
	assert.Equal(t, "new@school.test", res.Email)
	assert.True(t, res.ConfirmationRequired)
	assert.NoError(t, res.ProfileWarning)

	require.Len(t, h.profiles.created, 1)
	p := h.profiles.created[0]
	assert.Equal(t, session.RoleTeacher, p.Role)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "King Lovelace", p.LastName)

	// Sign-up never signs in.
	assert.False(t, h.resolver.Session().Authenticated)
	assert.Contains(t, h.bus.types(), shared.EventSignedUp)
}

func TestSignUp_ProfileWriteIsAWarning(t *testing.T) {
	h := newHarness(t, session.RoleNone)
	h.profiles.createErr = errors.New("insert failed")

	res, err := h.resolver.SignUp(context.Background(), SignUpCommand{
		Email:    "ada2@school.test",
		Password: "secret",
	})
	require.NoError(t, err)
	require.Error(t, res.ProfileWarning)
	assert.True(t, shared.IsWarning(res.ProfileWarning))

	p := h.profiles.created[0]
	assert.Equal(t, session.RoleStudent, p.Role)
	assert.Equal(t, "ada2", p.FirstName)
	assert.Equal(t, "User", p.LastName)
}

func TestSignUp_BackendError(t *testing.T) {
	h := newHarness(t, session.RoleNone)
	h.gateway.signUpErr = shared.NewRemoteError("test", "SignUp", "User already registered")

	_, err := h.resolver.SignUp(context.Background(), SignUpCommand{Email: "a@b.test", Password: "x"})
	assert.ErrorIs(t, err, shared.ErrRemote)
	assert.Empty(t, h.profiles.created)
	assert.False(t, h.resolver.IsSigningIn())
}

func TestSplitDisplayName(t *testing.T) {
	first, last := splitDisplayName("Grace", "g@x.test")
	assert.Equal(t, "Grace", first)
	assert.Equal(t, "User", last)

	first, last = splitDisplayName("  ", "grace.hopper@x.test")
	assert.Equal(t, "grace.hopper", first)
	assert.Equal(t, "User", last)
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGN OUT & ONBOARDING
// ══════════════════════════════════════════════════════════════════════════════

func TestSignOut_ClearsEvenWhenRevokeFails(t *testing.T) {
	h := newHarness(t, session.RoleStudent)
	_, err := h.signIn(t, session.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.authenticated))

	h.gateway.signOutErr = shared.NewNetworkError("test", "SignOut", errors.New("offline"))

	s := h.resolver.SignOut(context.Background())
	assert.False(t, s.Authenticated)
	assert.Equal(t, session.RoleNone, s.Role)
	assert.True(t, s.OnboardingSeen)
	assert.Equal(t, session.DestinationLogin, s.Destination())
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.authenticated))

	stored, _ := h.store.Load(context.Background())
	assert.True(t, stored.Tokens.IsZero())
	assert.Equal(t, session.RoleNone, stored.Role)
	assert.True(t, stored.OnboardingSeen)

	assert.Equal(t, []string{"access-u-ada"}, h.gateway.revoked())
	assert.Contains(t, h.bus.types(), shared.EventSignedOut)

	// Signing in again works after a sign-out.
	_, err = h.signIn(t, session.RoleStudent)
	assert.NoError(t, err)
}

func TestCompleteOnboarding(t *testing.T) {
	h := newHarness(t, session.RoleNone)
	ctx := context.Background()

	_, err := h.resolver.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.DestinationOnboarding, h.resolver.Session().Destination())

	s, err := h.resolver.CompleteOnboarding(ctx)
	require.NoError(t, err)
	assert.True(t, s.OnboardingSeen)
	assert.Equal(t, session.DestinationLogin, s.Destination())

	_, err = h.resolver.CompleteOnboarding(ctx)
	require.NoError(t, err)

	count := 0
	for _, e := range h.bus.types() {
		if e == shared.EventOnboardingSeen {
			count++
		}
	}
	assert.Equal(t, 1, count)

	stored, _ := h.store.Load(ctx)
	assert.True(t, stored.OnboardingSeen)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESTORE
// ══════════════════════════════════════════════════════════════════════════════

func storedSession(role session.Role) *memory.Store {
	return memory.NewStoreWith(session.Snapshot{
		OnboardingSeen: true,
		Role:           role,
		Tokens: session.Tokens{
			AccessToken:  "stored-access",
			RefreshToken: "stored-refresh",
			ExpiresAt:    time.Now().Add(time.Hour),
			UserID:       "u-ada",
		},
	})
}

func TestRestore_EmptyStore(t *testing.T) {
	h := newHarness(t, session.RoleNone)

	s, err := h.resolver.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.StateUnauthenticated, s.State)
	assert.False(t, s.OnboardingSeen)
	assert.False(t, h.resolver.IsSigningIn())
}

func TestRestore_RoleRules(t *testing.T) {
	tests := []struct {
		name   string
		cached session.Role
		server session.Role
		want   session.Role
	}{
		{"cached admin downgraded", session.RoleAdmin, session.RoleTeacher, session.RoleTeacher},
		{"cached admin kept", session.RoleAdmin, session.RoleAdmin, session.RoleAdmin},
		{"cached admin without profile", session.RoleAdmin, session.RoleNone, session.RoleStudent},
		{"cached teacher kept", session.RoleTeacher, session.RoleStudent, session.RoleTeacher},
		{"no cache uses profile", session.RoleNone, session.RoleTeacher, session.RoleTeacher},
		{"nothing known is student", session.RoleNone, session.RoleNone, session.RoleStudent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storedSession(tt.cached)
			h := newHarness(t, tt.server, withStore(store))

			s, err := h.resolver.Restore(context.Background())
			require.NoError(t, err)
			assert.True(t, s.Authenticated)
			assert.Equal(t, tt.want, s.Role)
			assert.Equal(t, "u-ada", s.UserID)

			stored, _ := store.Load(context.Background())
			assert.Equal(t, tt.want, stored.Role)
			assert.Contains(t, h.bus.types(), shared.EventSessionRestored)
		})
	}
}

func TestRestore_OfflineKeepsTokens(t *testing.T) {
	store := storedSession(session.RoleStudent)
	h := newHarness(t, session.RoleStudent, withStore(store))
	h.gateway.setErr = shared.NewNetworkError("test", "SetSession", errors.New("dial tcp"))

	s, err := h.resolver.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.StateUnauthenticated, s.State)
	assert.True(t, s.OnboardingSeen)

	stored, _ := store.Load(context.Background())
	assert.Equal(t, "stored-access", stored.Tokens.AccessToken)
}

func TestRestore_RejectedSessionIsCleared(t *testing.T) {
	store := storedSession(session.RoleStudent)
	h := newHarness(t, session.RoleStudent, withStore(store))
	h.gateway.setErr = shared.NewDomainError("test", "SetSession", shared.ErrUnauthorized, "session expired")

	s, err := h.resolver.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Authenticated)

	stored, _ := store.Load(context.Background())
	assert.True(t, stored.Tokens.IsZero())
	assert.Equal(t, session.RoleNone, stored.Role)
	assert.True(t, stored.OnboardingSeen)
}

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH
// ══════════════════════════════════════════════════════════════════════════════

func TestRefreshSession(t *testing.T) {
	h := newHarness(t, session.RoleStudent)
	h.gateway.expiresIn = time.Minute
	ctx := context.Background()

	refreshed, err := h.resolver.RefreshSession(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed, "nothing to refresh while signed out")

	_, err = h.signIn(t, session.RoleStudent)
	require.NoError(t, err)

	refreshed, err = h.resolver.RefreshSession(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)

	stored, _ := h.store.Load(ctx)
	assert.Equal(t, "access-refreshed", stored.Tokens.AccessToken)
	assert.Equal(t, "u-ada", stored.Tokens.UserID)
	assert.Contains(t, h.bus.types(), shared.EventSessionRefreshed)

	// Fresh tokens are left alone.
	refreshed, err = h.resolver.RefreshSession(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, 1, h.gateway.refreshes)
}

func TestRefreshSession_RejectedSignsOut(t *testing.T) {
	h := newHarness(t, session.RoleStudent)
	h.gateway.expiresIn = time.Minute
	_, err := h.signIn(t, session.RoleStudent)
	require.NoError(t, err)

	h.gateway.refreshErr = shared.NewDomainError("test", "RefreshSession", shared.ErrUnauthorized, "session expired")

	refreshed, err := h.resolver.RefreshSession(context.Background())
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	assert.False(t, refreshed)
	assert.False(t, h.resolver.Session().Authenticated)

	stored, _ := h.store.Load(context.Background())
	assert.True(t, stored.Tokens.IsZero())
}

func TestRefreshSession_NetworkErrorKeepsSession(t *testing.T) {
	h := newHarness(t, session.RoleStudent)
	h.gateway.expiresIn = time.Minute
	_, err := h.signIn(t, session.RoleStudent)
	require.NoError(t, err)

	h.gateway.refreshErr = shared.NewNetworkError("test", "RefreshSession", errors.New("offline"))

	_, err = h.resolver.RefreshSession(context.Background())
	assert.ErrorIs(t, err, shared.ErrNetwork)
	assert.True(t, h.resolver.Session().Authenticated)
}
