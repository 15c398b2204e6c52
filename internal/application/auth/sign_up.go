package auth

import (
	"context"
	"strings"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// SignUp creates the backend account and its profile row. It never signs
// in: the account has to be confirmed by email first. A failed profile
// write is reported on the result, not as an error.
func (r *Resolver) SignUp(ctx context.Context, cmd SignUpCommand) (*SignUpResult, error) {
	start := r.now()
	res, err := r.signUp(ctx, cmd)
	r.observe("signup", start, err)
	return res, err
}

func (r *Resolver) signUp(ctx context.Context, cmd SignUpCommand) (*SignUpResult, error) {
	const op = "SignUp"

	cmd.Email = normalizeEmail(cmd.Email)
	cmd.DisplayName = strings.TrimSpace(cmd.DisplayName)
	if err := r.validate.Struct(cmd); err != nil {
		return nil, validationError(op, err)
	}

	a, err := r.begin(op, "password", false)
	if err != nil {
		return nil, err
	}
	defer r.release(a)

	user, err := r.gateway.SignUp(ctx, cmd.Email, cmd.Password, cmd.DisplayName)
	if err != nil {
		return nil, err
	}

	first, last := splitDisplayName(cmd.DisplayName, cmd.Email)
	profile := &session.Profile{
		ID:        user.ID,
		Role:      roleOrStudent(cmd.Role),
		FirstName: first,
		LastName:  last,
	}

	result := &SignUpResult{
		UserID:               user.ID,
		Email:                user.Email,
		ConfirmationRequired: !user.Confirmed,
	}
	if result.Email == "" {
		result.Email = cmd.Email
	}

	if err := r.profiles.Create(ctx, profile); err != nil {
		result.ProfileWarning = shared.NewProfileWriteError(op, err)
		r.logger.Warn("profile write failed after sign-up", "user_id", user.ID, "error", err)
	}

	r.logger.Info("account created", "user_id", user.ID, "role", profile.Role.String(), "attempt", a.tag)
	r.publish(shared.EventSignedUp, user.ID, profile.Role, a.method, a.tag)
	return result, nil
}
