// Package auth implements the session and role resolver: the single owner of
// "who is signed in, and as what".
//
// Every operation that can authenticate is serialized. While one is in
// flight IsSigningIn reports true and others fail fast with ErrBusy. Each
// attempt carries a tag; SignOut and Close bump the tag, and a completion
// whose tag is no longer current is discarded and its remote session revoked.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// Browser shows the provider consent page and returns the redirect URL the
// provider sent the user back to.
type Browser interface {
	Authorize(ctx context.Context, authorizeURL string) (callbackURL string, err error)
}

// CallbackParser extracts the session tokens from an OAuth redirect URL.
type CallbackParser func(callbackURL string) (accessToken, refreshToken string, err error)

// Dependencies are the resolver's collaborators. Browser and Events are optional.
type Dependencies struct {
	Gateway  session.AuthGateway
	Profiles session.ProfileRepository
	Store    session.LocalStore

	Browser       Browser
	ParseCallback CallbackParser

	Events  shared.EventPublisher
	Metrics *Metrics
	Logger  *slog.Logger
}

// Config tunes the resolver.
type Config struct {
	OAuthProvider    string
	OAuthRedirectURL string

	// RefreshSkew: RefreshSession renews tokens expiring within this window.
	RefreshSkew time.Duration

	// DemoShortcut lets empty credentials sign in with just a role.
	DemoShortcut bool

	// RevokeTimeout bounds best-effort remote sign-outs.
	RevokeTimeout time.Duration
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		OAuthProvider: "google",
		RefreshSkew:   5 * time.Minute,
		RevokeTimeout: 5 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// Resolver owns the session snapshot. Safe for concurrent use.
type Resolver struct {
	gateway       session.AuthGateway
	profiles      session.ProfileRepository
	store         session.LocalStore
	browser       Browser
	parseCallback CallbackParser
	events        shared.EventPublisher
	metrics       *Metrics
	logger        *slog.Logger
	validate      *validator.Validate
	config        Config
	now           func() time.Time

	// mu guards the fields below. No I/O happens while it is held.
	mu       sync.Mutex
	snapshot session.Session
	tokens   session.Tokens
	busy     bool
	attempt  uint64
	closed   bool

	// commitMu orders store writes of completing attempts against SignOut,
	// so a sign-out always clears what a concurrent sign-in persisted.
	commitMu sync.Mutex
}

// attempt identifies one serialized operation.
type attempt struct {
	tag    uint64
	op     string
	method string
}

// NewResolver creates a resolver in the Unknown state. Call Restore next.
func NewResolver(deps Dependencies, config Config) (*Resolver, error) {
	switch {
	case deps.Gateway == nil:
		return nil, errors.New("auth: gateway is required")
	case deps.Profiles == nil:
		return nil, errors.New("auth: profile repository is required")
	case deps.Store == nil:
		return nil, errors.New("auth: local store is required")
	case deps.Browser != nil && deps.ParseCallback == nil:
		return nil, errors.New("auth: callback parser is required with a browser")
	}

	defaults := DefaultConfig()
	if config.OAuthProvider == "" {
		config.OAuthProvider = defaults.OAuthProvider
	}
	if config.RefreshSkew <= 0 {
		config.RefreshSkew = defaults.RefreshSkew
	}
	if config.RevokeTimeout <= 0 {
		config.RevokeTimeout = defaults.RevokeTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Resolver{
		gateway:       deps.Gateway,
		profiles:      deps.Profiles,
		store:         deps.Store,
		browser:       deps.Browser,
		parseCallback: deps.ParseCallback,
		events:        deps.Events,
		metrics:       metrics,
		logger:        logger.With("component", "auth_resolver"),
		validate:      validator.New(),
		config:        config,
		now:           time.Now,
	}, nil
}

// Session returns the current snapshot.
func (r *Resolver) Session() session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// IsSigningIn reports whether an auth operation is in flight.
func (r *Resolver) IsSigningIn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Close disposes the resolver. In-flight attempts are superseded and later
// calls fail with ErrResolverClosed. The last snapshot stays readable.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.attempt++
	r.busy = false
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Attempt bookkeeping
// ─────────────────────────────────────────────────────────────────────────────

func (r *Resolver) begin(op, method string, requireSignedOut bool) (attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.closed:
		return attempt{}, shared.ErrResolverClosed
	case r.busy:
		return attempt{}, shared.ErrSigningInBusy
	case requireSignedOut && r.snapshot.Authenticated:
		return attempt{}, shared.ErrAlreadySignedIn
	}

	r.busy = true
	r.attempt++
	return attempt{tag: r.attempt, op: op, method: method}, nil
}

// release clears the busy flag if a is still the current attempt.
func (r *Resolver) release(a attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempt == a.tag {
		r.busy = false
	}
}

func (r *Resolver) isCurrent(a attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && r.attempt == a.tag
}

// superseded is the error of a discarded completion.
func (r *Resolver) superseded(a attempt) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return shared.ErrResolverClosed
	}
	return shared.NewDomainError("auth", a.op, shared.ErrStaleAttempt, "sign-in was cancelled")
}

// settle publishes s as the snapshot if a is still current.
func (r *Resolver) settle(a attempt, s session.Session, tokens session.Tokens) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.attempt != a.tag {
		return false
	}
	r.snapshot = s
	r.tokens = tokens
	r.busy = false
	r.metrics.setAuthenticated(s.Authenticated)
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Side effects
// ─────────────────────────────────────────────────────────────────────────────

// revoke signs a half-established session out on the backend. Failures are
// logged only.
func (r *Resolver) revoke(ctx context.Context, op string, tokens session.Tokens) {
	if tokens.AccessToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.RevokeTimeout)
	defer cancel()

	if err := r.gateway.SignOut(ctx, tokens.AccessToken); err != nil {
		r.logger.Warn("remote sign-out failed", "op", op, "error", err)
	}
}

func (r *Resolver) publish(eventType shared.EventType, userID string, role session.Role, method string, tag uint64) {
	if r.events == nil {
		return
	}
	event := shared.NewSessionEvent(eventType, userID, role.String(), method, tag)
	if err := r.events.Publish(event); err != nil {
		r.logger.Warn("failed to publish session event", "event_type", eventType, "error", err)
	}
}

func (r *Resolver) observe(method string, start time.Time, err error) {
	r.metrics.observe(method, r.now().Sub(start).Seconds(), err)
}
