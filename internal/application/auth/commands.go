package auth

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// SignUpCommand registers a new account.
type SignUpCommand struct {
	Email       string `validate:"required,email"`
	Password    string `validate:"required"`
	DisplayName string `validate:"max=120"`

	// Role is written to the new profile. Empty or unknown means student.
	Role session.Role
}

// SignInCommand signs in with email and password.
type SignInCommand struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`

	// Role is the role picked on the sign-in screen. It is only a request:
	// the server profile decides.
	Role session.Role
}

// OAuthCommand signs in through the configured identity provider.
type OAuthCommand struct {
	Role session.Role
}

// SignUpResult is returned by a successful SignUp. The account is not
// signed in until the email is confirmed.
type SignUpResult struct {
	UserID               string
	Email                string
	ConfirmationRequired bool

	// ProfileWarning is set when the account exists but the profile row
	// could not be written. The sign-up itself still succeeded.
	ProfileWarning error
}

func normalizeEmail(email string) string {
	return shared.NormalizeEmail(email).String()
}

// splitDisplayName falls back to the local part of the email when no
// display name was given.
func splitDisplayName(displayName, email string) (first, last string) {
	if strings.TrimSpace(displayName) == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}
	n := shared.SplitDisplayName(displayName)
	return n.First, n.Last
}

// validationError maps validator output to the user-facing taxonomy.
func validationError(op string, err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return shared.NewValidationError(op, "invalid input")
	}

	for _, fe := range ve {
		if fe.Tag() == "required" {
			return shared.NewValidationError(op, "Please fill in all fields")
		}
	}
	switch ve[0].Tag() {
	case "email":
		return shared.NewValidationError(op, "Please enter a valid email address")
	case "max":
		return shared.NewValidationError(op, strings.ToLower(ve[0].Field())+" is too long")
	default:
		return shared.NewValidationError(op, "invalid "+strings.ToLower(ve[0].Field()))
	}
}
