package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

const authPath = "/auth/v1"

var _ session.AuthGateway = (*Client)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SignInWithPassword exchanges an email/password pair for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.AuthSession, error) {
	const op = "SignInWithPassword"

	var dto SessionDTO
	err := c.doRequest(ctx, op, request{
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   passwordGrantRequest{Email: email, Password: password},
		token:  c.config.AnonKey,
		auth:   true,
	}, &dto)
	if err != nil {
		return nil, credentialsError(op, err)
	}

	return c.acceptSession(&dto)
}

// SignUp registers an account; full_name goes into user metadata. When
// the project requires email confirmation no session is issued.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*session.AuthUser, error) {
	const op = "SignUp"

	var resp signUpResponse
	err := c.doRequest(ctx, op, request{
		method: http.MethodPost,
		path:   authPath + "/signup",
		body: signUpRequest{
			Email:    email,
			Password: password,
			Data:     UserMetadataDTO{FullName: fullName},
		},
		token: c.config.AnonKey,
		auth:  true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	user := &resp.UserDTO
	if resp.User != nil {
		user = resp.User
	}
	if user.ID == "" {
		return nil, shared.NewRemoteError("supabase", op, "sign-up returned no user")
	}
	return c.mapper.UserFromDTO(user)
}

// AuthorizeURL builds the provider consent URL. No request is made; the
// browser follows the redirect chain itself.
func (c *Client) AuthorizeURL(_ context.Context, provider, redirectURL string) (string, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", shared.NewValidationError("AuthorizeURL", "provider is required")
	}
	q := url.Values{"provider": {provider}}
	if redirectURL != "" {
		q.Set("redirect_to", redirectURL)
	}
	return c.config.BaseURL + authPath + "/authorize?" + q.Encode(), nil
}

// SetSession adopts tokens delivered by an OAuth redirect. An expired
// access token is refreshed; a live one is checked against the server.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*session.AuthSession, error) {
	const op = "SetSession"

	claims, err := ParseAccessToken(accessToken)
	if err != nil {
		return nil, shared.WrapError("supabase", op, shared.ErrInvalidFormat, "malformed access token", err)
	}

	if tokenExpired(claims, 0, c.mapper.now()) {
		if refreshToken == "" {
			return nil, shared.NewDomainError("supabase", op, shared.ErrExpired, "access token expired and no refresh token")
		}
		return c.RefreshSession(ctx, refreshToken)
	}

	user, err := c.GetUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	c.SetAccessToken(accessToken)
	return &session.AuthSession{
		Tokens: session.Tokens{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    claims.ExpiresAt.Time,
			UserID:       user.ID,
		},
		User: *user,
	}, nil
}

// RefreshSession exchanges a refresh token for a new pair. A rejected
// refresh token comes back as shared.ErrUnauthorized.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*session.AuthSession, error) {
	const op = "RefreshSession"

	var dto SessionDTO
	err := c.doRequest(ctx, op, request{
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   refreshGrantRequest{RefreshToken: refreshToken},
		token:  c.config.AnonKey,
		auth:   true,
	}, &dto)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
			return nil, shared.WrapError("supabase", op, shared.ErrUnauthorized, "session expired, sign in again", err)
		}
		return nil, err
	}

	return c.acceptSession(&dto)
}

// GetUser validates an access token on the server.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*session.AuthUser, error) {
	const op = "GetUser"

	var dto UserDTO
	err := c.doRequest(ctx, op, request{
		method: http.MethodGet,
		path:   authPath + "/user",
		token:  accessToken,
		auth:   true,
	}, &dto)
	if err != nil {
		return nil, err
	}
	return c.mapper.UserFromDTO(&dto)
}

// SignOut revokes the session server-side and drops the held bearer. The
// bearer is dropped even when the call fails.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	const op = "SignOut"
	defer c.SetAccessToken("")

	if accessToken == "" {
		return nil
	}

	err := c.doRequest(ctx, op, request{
		method: http.MethodPost,
		path:   authPath + "/logout",
		token:  accessToken,
		auth:   true,
	}, nil)
	if errors.Is(err, shared.ErrUnauthorized) {
		// Already revoked or expired.
		return nil
	}
	return err
}

func (c *Client) acceptSession(dto *SessionDTO) (*session.AuthSession, error) {
	sess, err := c.mapper.SessionFromDTO(dto)
	if err != nil {
		return nil, err
	}
	if sess.Tokens.AccessToken == "" {
		return nil, shared.NewRemoteError("supabase", "AcceptSession", "token response had no access token")
	}
	c.SetAccessToken(sess.Tokens.AccessToken)
	return sess, nil
}

func credentialsError(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Auth.IsInvalidCredentials() {
		return shared.NewInvalidCredentialsError(op, err)
	}
	return err
}
