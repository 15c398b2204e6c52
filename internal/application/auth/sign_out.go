package auth

import (
	"context"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// SignOut resets the session locally and revokes it remotely on a best
// effort basis. It never fails and supersedes any attempt in flight. The
// onboarding flag survives.
func (r *Resolver) SignOut(ctx context.Context) session.Session {
	start := r.now()

	r.mu.Lock()
	r.attempt++
	tag := r.attempt
	r.busy = false
	prev := r.snapshot
	tokens := r.tokens
	r.tokens = session.Tokens{}
	r.snapshot = session.Unauthenticated(prev.OnboardingSeen)
	next := r.snapshot
	r.metrics.setAuthenticated(false)
	r.mu.Unlock()

	r.revoke(ctx, "SignOut", tokens)

	r.commitMu.Lock()
	if err := r.store.ClearSession(context.WithoutCancel(ctx)); err != nil {
		r.logger.Error("failed to clear stored session", "error", err)
	}
	r.commitMu.Unlock()

	r.logger.Info("signed out", "user_id", prev.UserID, "attempt", tag)
	r.publish(shared.EventSignedOut, prev.UserID, prev.Role, "", tag)
	r.observe("signout", start, nil)
	return next
}

// CompleteOnboarding records that the onboarding screens were shown.
// Calling it again is a no-op.
func (r *Resolver) CompleteOnboarding(ctx context.Context) (session.Session, error) {
	if err := r.store.MarkOnboardingSeen(ctx); err != nil {
		return r.Session(), err
	}

	r.mu.Lock()
	already := r.snapshot.OnboardingSeen
	r.snapshot.OnboardingSeen = true
	if r.snapshot.State == session.StateUnknown {
		r.snapshot.State = session.StateUnauthenticated
	}
	next := r.snapshot
	r.mu.Unlock()

	if !already {
		r.publish(shared.EventOnboardingSeen, next.UserID, next.Role, "", 0)
	}
	return next, nil
}
