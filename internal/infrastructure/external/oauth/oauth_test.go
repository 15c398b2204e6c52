package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkcollege/school-portal/internal/domain/shared"
)

func TestParseCallback_Fragment(t *testing.T) {
	cb, err := ParseCallback("portal://auth/callback#access_token=abc.def&refresh_token=r1&expires_in=3600&token_type=bearer")
	require.NoError(t, err)

	assert.Equal(t, "abc.def", cb.AccessToken)
	assert.Equal(t, "r1", cb.RefreshToken)
	assert.Equal(t, 3600, cb.ExpiresIn)
	assert.Equal(t, "bearer", cb.TokenType)
}

func TestParseCallback_Query(t *testing.T) {
	cb, err := ParseCallback("http://127.0.0.1:54321/auth/callback?access_token=a%2Bb&refresh_token=r2")
	require.NoError(t, err)
	assert.Equal(t, "a+b", cb.AccessToken)
}

func TestParseCallback_FragmentWinsOverQuery(t *testing.T) {
	cb, err := ParseCallback("portal://auth/callback?access_token=query&refresh_token=q#access_token=frag&refresh_token=f")
	require.NoError(t, err)
	assert.Equal(t, "frag", cb.AccessToken)
	assert.Equal(t, "f", cb.RefreshToken)
}

func TestParseCallback_QueryWithEmptyOrJunkFragment(t *testing.T) {
	for _, raw := range []string{
		"portal://auth/callback?access_token=a&refresh_token=b#",
		"portal://auth/callback?access_token=a&refresh_token=b#_=_",
	} {
		t.Run(raw, func(t *testing.T) {
			cb, err := ParseCallback(raw)
			require.NoError(t, err)
			assert.Equal(t, "a", cb.AccessToken)
			assert.Equal(t, "b", cb.RefreshToken)
		})
	}
}

func TestParseCallback_FragmentOverlaysQueryPerKey(t *testing.T) {
	cb, err := ParseCallback("portal://auth/callback?refresh_token=q&state=s1#access_token=frag")
	require.NoError(t, err)
	assert.Equal(t, "frag", cb.AccessToken)
	assert.Equal(t, "q", cb.RefreshToken)
	assert.Equal(t, "s1", CallbackState("portal://auth/callback?refresh_token=q&state=s1#access_token=frag"))
}

func TestParseParams_PlusIsLiteral(t *testing.T) {
	params := ParseParams("access_token=a+b&refresh_token=c%2Bd%20e")
	assert.Equal(t, "a+b", params["access_token"])
	assert.Equal(t, "c+d e", params["refresh_token"])
}

func TestParseCallback_Missing(t *testing.T) {
	tests := []string{
		"portal://auth/callback",
		"portal://auth/callback#",
		"portal://auth/callback#access_token=only",
		"portal://auth/callback#access_token=&refresh_token=r",
		"portal://auth/callback#=x&refresh_token=r",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseCallback(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrOAuth)
		})
	}
}

func TestParseCallback_ProviderError(t *testing.T) {
	_, err := ParseCallback("portal://auth/callback#error=access_denied&error_description=User%20denied%20access")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrOAuth)
	assert.Equal(t, "User denied access", shared.UserMessage(err).Message)
}

func TestParseParams_SkipsBrokenPairs(t *testing.T) {
	params := ParseParams("a=1&&b&=2&c=%zz&d=x=y")
	assert.Equal(t, map[string]string{"a": "1", "c": "%zz", "d": "x=y"}, params)
}

func TestTokens(t *testing.T) {
	access, refresh, err := Tokens("portal://auth/callback#access_token=a1&refresh_token=r1")
	require.NoError(t, err)
	assert.Equal(t, "a1", access)
	assert.Equal(t, "r1", refresh)

	_, _, err = Tokens("portal://auth/callback#error=access_denied")
	assert.ErrorIs(t, err, shared.ErrOAuth)
}

func TestLoopbackBrowser_Deliver(t *testing.T) {
	var opened string
	b := NewLoopbackBrowser(LauncherFunc(func(u string) error {
		opened = u
		return nil
	}), time.Second, nil)

	go func() {
		for !b.Waiting() {
			time.Sleep(time.Millisecond)
		}
		b.Deliver("portal://auth/callback#access_token=a&refresh_token=r")
	}()

	got, err := b.Authorize(context.Background(), "https://backend/authorize")
	require.NoError(t, err)
	assert.Equal(t, "https://backend/authorize", opened)
	assert.Contains(t, got, "access_token=a")
	assert.False(t, b.Waiting())
}

func TestLoopbackBrowser_Timeout(t *testing.T) {
	b := NewLoopbackBrowser(LauncherFunc(func(string) error { return nil }), 10*time.Millisecond, nil)

	_, err := b.Authorize(context.Background(), "https://backend/authorize")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrOAuth)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopbackBrowser_Cancelled(t *testing.T) {
	b := NewLoopbackBrowser(LauncherFunc(func(string) error { return nil }), 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Authorize(ctx, "https://backend/authorize")
	assert.ErrorIs(t, err, shared.ErrOAuth)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoopbackBrowser_DeliverWithoutFlow(t *testing.T) {
	b := NewLoopbackBrowser(LauncherFunc(func(string) error { return nil }), 0, nil)
	assert.False(t, b.Deliver("portal://auth/callback#access_token=a&refresh_token=r"))
}

func TestBindState(t *testing.T) {
	got, ok := bindState("https://backend/auth/v1/authorize?provider=google&redirect_to="+
		url.QueryEscape("http://127.0.0.1:8788/auth/callback"), "n1")
	require.True(t, ok)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "google", u.Query().Get("provider"))
	assert.Equal(t, "http://127.0.0.1:8788/auth/callback?state=n1", u.Query().Get("redirect_to"))

	_, ok = bindState("https://backend/authorize", "n1")
	assert.False(t, ok)
}

func TestLoopbackBrowser_RejectsForeignState(t *testing.T) {
	opened := make(chan string, 1)
	b := NewLoopbackBrowser(LauncherFunc(func(u string) error {
		opened <- u
		return nil
	}), time.Second, nil)

	done := make(chan string, 1)
	go func() {
		got, _ := b.Authorize(context.Background(), "https://backend/auth/v1/authorize?provider=google&redirect_to="+
			url.QueryEscape("http://127.0.0.1:8788/auth/callback"))
		done <- got
	}()

	u, err := url.Parse(<-opened)
	require.NoError(t, err)
	redirect, err := url.Parse(u.Query().Get("redirect_to"))
	require.NoError(t, err)
	state := redirect.Query().Get(StateParam)
	require.NotEmpty(t, state)

	assert.False(t, b.Deliver("http://127.0.0.1:8788/auth/callback?access_token=a&refresh_token=r"))
	assert.False(t, b.Deliver("http://127.0.0.1:8788/auth/callback?state=forged&access_token=a&refresh_token=r"))
	assert.True(t, b.Waiting())

	want := "http://127.0.0.1:8788/auth/callback?state=" + state + "#access_token=a&refresh_token=r"
	assert.True(t, b.Deliver(want))
	assert.Equal(t, want, <-done)
}

func TestCallbackRoute(t *testing.T) {
	b := NewLoopbackBrowser(LauncherFunc(func(string) error { return nil }), time.Second, nil)
	r := chi.NewRouter()
	b.Mount(r)

	t.Run("fragment relay page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CallbackPath, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "location.hash"))
	})

	t.Run("state only keeps relaying", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CallbackPath+"?state=n1", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "location.search")
	})

	t.Run("no waiting flow", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CallbackPath+"?access_token=a&refresh_token=r", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("delivers to waiting flow", func(t *testing.T) {
		done := make(chan string, 1)
		go func() {
			got, _ := b.Authorize(context.Background(), "https://backend/authorize")
			done <- got
		}()
		for !b.Waiting() {
			time.Sleep(time.Millisecond)
		}

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CallbackPath+"?access_token=a&refresh_token=r", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		got := <-done
		cb, err := ParseCallback(got)
		require.NoError(t, err)
		assert.Equal(t, "a", cb.AccessToken)
	})
}
