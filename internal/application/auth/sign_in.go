package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SIGN IN
// ══════════════════════════════════════════════════════════════════════════════

// SignIn authenticates with email and password and resolves the role
// against the server profile. On success the role, onboarding flag and
// tokens are persisted before the snapshot flips to Authenticated.
func (r *Resolver) SignIn(ctx context.Context, cmd SignInCommand) (session.Session, error) {
	start := r.now()
	cmd.Email = normalizeEmail(cmd.Email)

	if r.config.DemoShortcut && cmd.Email == "" && cmd.Password == "" {
		s, err := r.demoSignIn(ctx, cmd.Role)
		r.observe("demo", start, err)
		return s, err
	}

	s, err := r.signIn(ctx, cmd)
	r.observe("password", start, err)
	return s, err
}

func (r *Resolver) signIn(ctx context.Context, cmd SignInCommand) (session.Session, error) {
	if err := r.validate.Struct(cmd); err != nil {
		return session.Session{}, validationError("SignIn", err)
	}

	a, err := r.begin("SignIn", "password", true)
	if err != nil {
		return session.Session{}, err
	}
	defer r.release(a)

	auth, err := r.gateway.SignInWithPassword(ctx, cmd.Email, cmd.Password)
	if err != nil {
		r.logger.Info("sign-in rejected", "outcome", outcome(err), "attempt", a.tag)
		return session.Session{}, err
	}

	return r.establish(ctx, a, auth, cmd.Role)
}

// demoSignIn authenticates with only a role. There is no backend session.
func (r *Resolver) demoSignIn(ctx context.Context, requested session.Role) (session.Session, error) {
	a, err := r.begin("SignIn", "demo", true)
	if err != nil {
		return session.Session{}, err
	}
	defer r.release(a)

	return r.commit(ctx, a, "", roleOrStudent(requested), session.Tokens{})
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGN IN WITH OAUTH
// ══════════════════════════════════════════════════════════════════════════════

// SignInWithOAuth runs the provider flow: authorize URL, browser round trip,
// token extraction from the redirect, session exchange, then the same role
// rule as SignIn.
func (r *Resolver) SignInWithOAuth(ctx context.Context, cmd OAuthCommand) (session.Session, error) {
	start := r.now()
	s, err := r.signInWithOAuth(ctx, cmd)
	r.observe("oauth", start, err)
	return s, err
}

func (r *Resolver) signInWithOAuth(ctx context.Context, cmd OAuthCommand) (session.Session, error) {
	const op = "SignInWithOAuth"

	if r.browser == nil {
		return session.Session{}, shared.NewOAuthError(op, "social sign-in is not available", nil)
	}

	a, err := r.begin(op, "oauth", true)
	if err != nil {
		return session.Session{}, err
	}
	defer r.release(a)

	// The requested role survives the redirect in storage.
	if cmd.Role.IsValid() {
		if err := r.store.SaveRole(ctx, cmd.Role); err != nil {
			r.logger.Warn("failed to save requested role", "error", err)
		}
	}

	authorizeURL, err := r.gateway.AuthorizeURL(ctx, r.config.OAuthProvider, r.config.OAuthRedirectURL)
	if err != nil {
		return session.Session{}, err
	}

	callbackURL, err := r.browser.Authorize(ctx, authorizeURL)
	if err != nil {
		if !errors.Is(err, shared.ErrOAuth) {
			err = shared.NewOAuthError(op, "sign-in was not completed", err)
		}
		return session.Session{}, err
	}

	accessToken, refreshToken, err := r.parseCallback(callbackURL)
	if err != nil {
		if !errors.Is(err, shared.ErrOAuth) {
			err = shared.NewOAuthError(op, "invalid callback", err)
		}
		return session.Session{}, err
	}

	auth, err := r.gateway.SetSession(ctx, accessToken, refreshToken)
	if err != nil {
		if shared.IsRetryable(err) {
			return session.Session{}, err
		}
		return session.Session{}, shared.NewOAuthError(op, "could not establish a session", err)
	}

	return r.establish(ctx, a, auth, cmd.Role)
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED COMPLETION
// ══════════════════════════════════════════════════════════════════════════════

// establish resolves the effective role for a fresh backend session and
// commits it. Any failure here tears the backend session down.
func (r *Resolver) establish(ctx context.Context, a attempt, auth *session.AuthSession, requested session.Role) (session.Session, error) {
	serverRole, err := r.serverRole(ctx, auth.User.ID)
	if err != nil {
		r.revoke(ctx, a.op, auth.Tokens)
		return session.Session{}, err
	}

	role, err := session.ResolveEffectiveRole(requested, serverRole)
	if err != nil {
		r.logger.Warn("role denied",
			"user_id", auth.User.ID,
			"requested", requested.String(),
			"server", serverRole.String(),
		)
		r.revoke(ctx, a.op, auth.Tokens)
		r.publish(shared.EventRoleDenied, auth.User.ID, requested, a.method, a.tag)
		return session.Session{}, err
	}

	tokens := auth.Tokens
	if tokens.UserID == "" {
		tokens.UserID = auth.User.ID
	}
	return r.commit(ctx, a, auth.User.ID, role, tokens)
}

// serverRole reads the profile role. A missing profile is RoleNone; any
// other failure means the role cannot be verified.
func (r *Resolver) serverRole(ctx context.Context, userID string) (session.Role, error) {
	profile, err := r.profiles.GetByID(ctx, userID)
	switch {
	case err == nil:
		return profile.Role, nil
	case shared.IsNotFound(err):
		r.logger.Info("no profile for user", "user_id", userID)
		return session.RoleNone, nil
	default:
		return session.RoleNone, err
	}
}

// commit persists the signed-in state and flips the snapshot, unless the
// attempt was superseded on the way.
func (r *Resolver) commit(ctx context.Context, a attempt, userID string, role session.Role, tokens session.Tokens) (session.Session, error) {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	if !r.isCurrent(a) {
		r.revoke(ctx, a.op, tokens)
		return session.Session{}, r.superseded(a)
	}

	if err := r.store.SaveSignedIn(ctx, role, tokens); err != nil {
		r.revoke(ctx, a.op, tokens)
		return session.Session{}, fmt.Errorf("auth.%s: save session: %w", a.op, err)
	}

	next := session.Authenticated(userID, role, true)
	if !r.settle(a, next, tokens) {
		r.revoke(ctx, a.op, tokens)
		return session.Session{}, r.superseded(a)
	}

	r.logger.Info("signed in",
		"user_id", userID,
		"role", role.String(),
		"method", a.method,
		"attempt", a.tag,
	)
	r.publish(shared.EventSignedIn, userID, role, a.method, a.tag)
	return next, nil
}

// roleOrStudent maps an empty or unknown role to student.
func roleOrStudent(role session.Role) session.Role {
	if role.IsValid() {
		return role
	}
	return session.RoleStudent
}
