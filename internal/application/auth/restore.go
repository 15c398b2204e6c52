package auth

import (
	"context"
	"errors"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESTORE
// ══════════════════════════════════════════════════════════════════════════════

// Restore reads the local store and re-validates a persisted session with
// the backend. A session that cannot be verified comes back
// Unauthenticated with a nil error; only a broken local store is an error.
func (r *Resolver) Restore(ctx context.Context) (session.Session, error) {
	start := r.now()
	s, err := r.restore(ctx)
	r.observe("restore", start, err)
	return s, err
}

func (r *Resolver) restore(ctx context.Context) (session.Session, error) {
	a, err := r.begin("Restore", "restore", false)
	if err != nil {
		return r.Session(), err
	}
	defer r.release(a)

	snap, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Error("failed to read local session", "error", err)
		return r.settleSignedOut(a, false), err
	}

	if snap.Tokens.IsZero() {
		return r.settleSignedOut(a, snap.OnboardingSeen), nil
	}

	auth, err := r.gateway.SetSession(ctx, snap.Tokens.AccessToken, snap.Tokens.RefreshToken)
	if err != nil {
		if sessionInvalid(err) {
			r.logger.Info("stored session is no longer valid", "error", err)
			r.clearStored(ctx)
		} else {
			r.logger.Warn("could not verify stored session", "error", err)
		}
		return r.settleSignedOut(a, snap.OnboardingSeen), nil
	}

	serverRole, err := r.serverRole(ctx, auth.User.ID)
	if err != nil {
		r.logger.Warn("could not read profile on restore", "user_id", auth.User.ID, "error", err)
		return r.settleSignedOut(a, snap.OnboardingSeen), nil
	}

	role := session.ResolveRestoredRole(snap.Role, serverRole)
	if snap.Role == session.RoleAdmin && role != session.RoleAdmin {
		r.logger.Warn("cached admin role downgraded", "user_id", auth.User.ID, "role", role.String())
	}

	tokens := auth.Tokens
	if tokens.UserID == "" {
		tokens.UserID = auth.User.ID
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	if !r.isCurrent(a) {
		// Signed out meanwhile. On Close the stored session stays valid.
		if err := r.superseded(a); !errors.Is(err, shared.ErrResolverClosed) {
			r.revoke(ctx, a.op, tokens)
			return r.Session(), err
		}
		return r.Session(), shared.ErrResolverClosed
	}

	// Tokens may have been rotated by SetSession.
	if err := r.store.SaveSignedIn(ctx, role, tokens); err != nil {
		r.logger.Error("failed to persist restored session", "error", err)
		return r.settleSignedOut(a, snap.OnboardingSeen), err
	}

	next := session.Authenticated(auth.User.ID, role, true)
	if !r.settle(a, next, tokens) {
		return r.Session(), r.superseded(a)
	}

	r.logger.Info("session restored", "user_id", auth.User.ID, "role", role.String(), "attempt", a.tag)
	r.publish(shared.EventSessionRestored, auth.User.ID, role, a.method, a.tag)
	return next, nil
}

func (r *Resolver) settleSignedOut(a attempt, onboardingSeen bool) session.Session {
	next := session.Unauthenticated(onboardingSeen)
	if !r.settle(a, next, session.Tokens{}) {
		return r.Session()
	}
	return next
}

func (r *Resolver) clearStored(ctx context.Context) {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()
	if err := r.store.ClearSession(ctx); err != nil {
		r.logger.Error("failed to clear stored session", "error", err)
	}
}

// sessionInvalid reports errors after which the stored tokens are useless.
// Network failures keep them for the next start.
func sessionInvalid(err error) bool {
	return errors.Is(err, shared.ErrUnauthorized) ||
		errors.Is(err, shared.ErrExpired) ||
		errors.Is(err, shared.ErrInvalidFormat)
}

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH
// ══════════════════════════════════════════════════════════════════════════════

// RefreshSession renews the tokens when the access token expires within
// the configured skew. It reports whether a refresh happened. It never
// waits for a running sign-in; it skips instead. A rejected refresh token
// signs the user out locally.
func (r *Resolver) RefreshSession(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, shared.ErrResolverClosed
	}
	if !r.snapshot.Authenticated || r.tokens.RefreshToken == "" || r.busy {
		r.mu.Unlock()
		return false, nil
	}
	tag := r.attempt
	current := r.tokens
	r.mu.Unlock()

	if !current.ExpiresWithin(r.config.RefreshSkew, r.now()) {
		return false, nil
	}

	start := r.now()
	auth, err := r.gateway.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		r.observe("refresh", start, err)
		if errors.Is(err, shared.ErrUnauthorized) {
			r.logger.Info("refresh token rejected, signing out", "error", err)
			r.SignOut(ctx)
		}
		return false, err
	}

	tokens := auth.Tokens
	if tokens.UserID == "" {
		tokens.UserID = current.UserID
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	r.mu.Lock()
	stale := r.closed || r.attempt != tag || !r.snapshot.Authenticated
	r.mu.Unlock()
	if stale {
		r.observe("refresh", start, nil)
		return false, nil
	}

	if err := r.store.SaveTokens(ctx, tokens); err != nil {
		r.observe("refresh", start, err)
		return false, err
	}

	r.mu.Lock()
	r.tokens = tokens
	s := r.snapshot
	r.mu.Unlock()

	r.logger.Debug("session refreshed", "user_id", s.UserID, "expires_at", tokens.ExpiresAt)
	r.publish(shared.EventSessionRefreshed, s.UserID, s.Role, "refresh", tag)
	r.observe("refresh", start, nil)
	return true, nil
}
