// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrInvalidFormat = errors.New("invalid format")
	ErrIncomplete    = errors.New("incomplete input")

	// State errors
	ErrStateTransition = errors.New("invalid state transition")
	ErrBusy            = errors.New("operation already in progress")
	ErrStaleAttempt    = errors.New("attempt superseded")
	ErrExpired         = errors.New("expired")

	// Authentication / authorization errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrOAuth              = errors.New("oauth flow failed")

	// External service errors
	ErrNetwork            = errors.New("network error")
	ErrRemote             = errors.New("remote service rejected request")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")

	// Warnings: the operation succeeded but a secondary write did not.
	ErrProfileWrite = errors.New("profile write failed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "auth", "academics", "supabase"
	Op      string // Operation that failed, e.g., "SignIn", "FetchProfile"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Constructors for the portal error taxonomy
// ─────────────────────────────────────────────────────────────────────────────

// NewValidationError reports missing or malformed user input.
func NewValidationError(op, message string) *DomainError {
	return NewDomainError("auth", op, ErrValidation, message)
}

// NewInvalidCredentialsError reports a rejected email/password pair.
func NewInvalidCredentialsError(op string, err error) *DomainError {
	return WrapError("auth", op, ErrInvalidCredentials, "invalid email or password", err)
}

// NewAuthorizationError reports a role claim the server profile does not back.
func NewAuthorizationError(op, message string) *DomainError {
	return NewDomainError("auth", op, ErrForbidden, message)
}

// NewNetworkError reports a transport level failure.
func NewNetworkError(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrNetwork, "backend unreachable", err)
}

// NewRemoteError carries the backend's own message.
func NewRemoteError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrRemote, message)
}

// NewProfileWriteError wraps a failed profile insert after sign-up.
func NewProfileWriteError(op string, err error) *DomainError {
	return WrapError("auth", op, ErrProfileWrite, "account created but profile was not saved", err)
}

// NewOAuthError reports a cancelled or malformed OAuth round trip.
func NewOAuthError(op, message string, err error) *DomainError {
	return WrapError("oauth", op, ErrOAuth, message, err)
}

// Auth domain errors
var (
	ErrSigningInBusy    = NewDomainError("auth", "Begin", ErrBusy, "another sign-in is in progress")
	ErrAlreadySignedIn  = NewDomainError("auth", "Begin", ErrStateTransition, "already signed in, sign out first")
	ErrNotSignedIn      = NewDomainError("auth", "Session", ErrUnauthorized, "not signed in")
	ErrAdminNotVerified = NewAuthorizationError("ResolveRole", "you do not have admin privileges")
	ErrResolverClosed   = NewDomainError("auth", "Begin", ErrStateTransition, "resolver is closed")
)

// Academics domain errors
var (
	ErrStudentNotFound    = NewDomainError("academics", "FindStudent", ErrNotFound, "student not found")
	ErrResultNotFound     = NewDomainError("academics", "FindResult", ErrNotFound, "result not found")
	ErrAttendanceNotFound = NewDomainError("academics", "FindAttendance", ErrNotFound, "attendance not found")
	ErrInvalidMarks       = NewDomainError("academics", "Validate", ErrInvalidInput, "marks must be within 0 and max marks")
	ErrNoClassAssigned    = NewDomainError("academics", "FindAssignment", ErrNotFound, "you aren't associated with a specific class in the portal yet")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrIncomplete) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRemote) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsWarning reports errors that must be surfaced without failing the operation.
func IsWarning(err error) bool {
	return errors.Is(err, ErrProfileWrite)
}

// IsUserFacing reports errors whose message can be shown as is. Anything
// else gets a generic message at the API boundary.
func IsUserFacing(err error) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return IsValidation(err) ||
		IsWarning(err) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrOAuth) ||
		errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNetwork)
}

// Alert is a user-facing rendering of an error: a title and a message.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// UserMessage converts any error into an alert for the UI boundary.
func UserMessage(err error) Alert {
	if err == nil {
		return Alert{}
	}

	msg := err.Error()
	var de *DomainError
	if errors.As(err, &de) {
		msg = de.Message
	}

	switch {
	case errors.Is(err, ErrIncomplete):
		return Alert{Title: "Incomplete", Message: msg}
	case errors.Is(err, ErrValidation):
		return Alert{Title: "Error", Message: msg}
	case errors.Is(err, ErrInvalidCredentials):
		return Alert{Title: "Sign In Failed", Message: "Invalid email or password"}
	case errors.Is(err, ErrForbidden):
		return Alert{Title: "Access Denied", Message: msg}
	case errors.Is(err, ErrNetwork):
		return Alert{Title: "Connection Problem", Message: "Check your internet connection and try again"}
	case errors.Is(err, ErrOAuth):
		return Alert{Title: "Google Sign In Failed", Message: msg}
	case errors.Is(err, ErrBusy):
		return Alert{Title: "Please Wait", Message: msg}
	case errors.Is(err, ErrProfileWrite):
		return Alert{Title: "Warning", Message: msg}
	case errors.Is(err, ErrNotFound):
		return Alert{Title: "Not Found", Message: msg}
	default:
		return Alert{Title: "Error", Message: msg}
	}
}
