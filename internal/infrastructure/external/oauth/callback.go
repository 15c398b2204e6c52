// Package oauth handles the browser side of social sign-in: opening the
// provider consent page and receiving the redirect that carries tokens.
package oauth

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// CallbackPath is the redirect path registered with the backend.
const CallbackPath = "/auth/callback"

// StateParam carries the per-flow nonce on the redirect URL.
const StateParam = "state"

// Callback is what the provider redirect carried.
type Callback struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
	ProviderName string

	// Raw holds every parsed parameter.
	Raw map[string]string
}

// ParseParams splits "k=v&k=v" by hand. Pairs without a key or a value
// are skipped; values are percent-decoded ("+" stays literal), falling
// back to the raw text when decoding fails. Later duplicates win.
func ParseParams(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" || value == "" {
			continue
		}
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		out[key] = value
	}
	return out
}

// callbackParams merges the query and fragment parameters of a redirect
// URL. Fragment values win per key; an empty or junk fragment leaves the
// query intact.
func callbackParams(rawURL string) map[string]string {
	base, fragment, _ := strings.Cut(rawURL, "#")

	var query string
	if _, q, ok := strings.Cut(base, "?"); ok {
		query = q
	}

	params := ParseParams(query)
	for k, v := range ParseParams(fragment) {
		params[k] = v
	}
	return params
}

// CallbackState returns the state nonce carried by a redirect URL.
func CallbackState(rawURL string) string {
	return callbackParams(rawURL)[StateParam]
}

// ParseCallback extracts tokens from a redirect URL such as
// portal://auth/callback#access_token=...&refresh_token=...
//
// A provider error, or a missing access or refresh token, is an OAuthError.
func ParseCallback(rawURL string) (*Callback, error) {
	const op = "ParseCallback"

	params := callbackParams(rawURL)

	if e := params["error"]; e != "" {
		msg := params["error_description"]
		if msg == "" {
			msg = e
		}
		return nil, shared.NewOAuthError(op, msg, nil)
	}

	cb := &Callback{
		AccessToken:  params["access_token"],
		RefreshToken: params["refresh_token"],
		TokenType:    params["token_type"],
		ProviderName: params["provider"],
		Raw:          params,
	}
	if n, err := strconv.Atoi(params["expires_in"]); err == nil {
		cb.ExpiresIn = n
	}

	if cb.AccessToken == "" || cb.RefreshToken == "" {
		return nil, shared.NewOAuthError(op, "sign-in was cancelled or returned no session", nil)
	}
	return cb, nil
}

// Tokens is ParseCallback reduced to the token pair.
func Tokens(rawURL string) (accessToken, refreshToken string, err error) {
	cb, err := ParseCallback(rawURL)
	if err != nil {
		return "", "", err
	}
	return cb.AccessToken, cb.RefreshToken, nil
}
