package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LAUNCHER
// ══════════════════════════════════════════════════════════════════════════════

// Launcher opens a URL in the user's browser.
type Launcher interface {
	Open(url string) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(url string) error

// Open implements Launcher.
func (f LauncherFunc) Open(url string) error { return f(url) }

// SystemLauncher uses the platform opener.
func SystemLauncher() Launcher {
	return LauncherFunc(func(url string) error {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", url)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
		default:
			cmd = exec.Command("xdg-open", url)
		}
		return cmd.Start()
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LOOPBACK BROWSER
// ══════════════════════════════════════════════════════════════════════════════

// ErrFlowInProgress is returned when Authorize is called while another
// consent page is still open.
var ErrFlowInProgress = errors.New("oauth: another sign-in is waiting for the browser")

// LoopbackBrowser opens the consent page and waits for the provider to
// redirect back to CallbackPath on the loopback listener. The redirect
// URL can also be handed in directly with Deliver.
//
// When the authorize URL names a redirect_to, each flow binds a fresh
// state nonce into it and only a redirect carrying that nonce is accepted.
type LoopbackBrowser struct {
	launcher Launcher
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending chan string
	state   string
}

// NewLoopbackBrowser creates a browser. A zero timeout waits until ctx is done.
func NewLoopbackBrowser(launcher Launcher, timeout time.Duration, logger *slog.Logger) *LoopbackBrowser {
	if launcher == nil {
		launcher = SystemLauncher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoopbackBrowser{
		launcher: launcher,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "oauth")),
	}
}

// Authorize opens authorizeURL and blocks until the redirect URL arrives.
// Cancellation and timeout are reported as OAuthError.
func (b *LoopbackBrowser) Authorize(ctx context.Context, authorizeURL string) (string, error) {
	const op = "Authorize"

	state := uuid.NewString()
	authorizeURL, bound := bindState(authorizeURL, state)
	if !bound {
		state = ""
	}

	ch, err := b.begin(state)
	if err != nil {
		return "", shared.NewOAuthError(op, "sign-in already waiting for the browser", err)
	}
	defer b.end(ch)

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	if err := b.launcher.Open(authorizeURL); err != nil {
		return "", shared.NewOAuthError(op, "could not open the browser", err)
	}
	b.logger.Info("waiting for oauth redirect")

	select {
	case callbackURL := <-ch:
		return callbackURL, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", shared.NewOAuthError(op, "sign-in timed out", ctx.Err())
		}
		return "", shared.NewOAuthError(op, "sign-in was cancelled", ctx.Err())
	}
}

func (b *LoopbackBrowser) begin(state string) (chan string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending != nil {
		return nil, ErrFlowInProgress
	}
	b.pending = make(chan string, 1)
	b.state = state
	return b.pending, nil
}

func (b *LoopbackBrowser) end(ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == ch {
		b.pending = nil
		b.state = ""
	}
}

// bindState adds state to the redirect_to URL inside authorizeURL. It
// reports false when there is no redirect_to to carry it.
func bindState(authorizeURL, state string) (string, bool) {
	u, err := url.Parse(authorizeURL)
	if err != nil {
		return authorizeURL, false
	}
	q := u.Query()
	redirect := q.Get("redirect_to")
	if redirect == "" {
		return authorizeURL, false
	}
	ru, err := url.Parse(redirect)
	if err != nil {
		return authorizeURL, false
	}

	rq := ru.Query()
	rq.Set(StateParam, state)
	ru.RawQuery = rq.Encode()
	q.Set("redirect_to", ru.String())
	u.RawQuery = q.Encode()
	return u.String(), true
}

// Deliver hands a redirect URL to the waiting Authorize call. It returns
// false when no flow is waiting, one was already delivered, or the URL
// does not carry the flow's state.
func (b *LoopbackBrowser) Deliver(callbackURL string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return false
	}
	if b.state != "" && CallbackState(callbackURL) != b.state {
		b.logger.Warn("oauth redirect with unexpected state ignored")
		return false
	}
	select {
	case b.pending <- callbackURL:
		return true
	default:
		return false
	}
}

// Waiting reports whether a flow is waiting for its redirect.
func (b *LoopbackBrowser) Waiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK ROUTE
// ══════════════════════════════════════════════════════════════════════════════

// The implicit flow puts tokens in the fragment, which browsers never
// send. This page moves the fragment into the query and reloads.
const fragmentRelayPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Signing in</title></head>
<body><p>Completing sign-in...</p>
<script>
if (location.hash.length > 1) {
  location.replace(location.pathname + (location.search ? location.search + "&" : "?") + location.hash.substring(1));
} else {
  document.body.innerHTML = "<p>Sign-in returned no session. You can close this window.</p>";
}
</script></body></html>`

const donePage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Signed in</title></head>
<body><p>Sign-in complete. You can close this window and return to the portal.</p></body></html>`

const noFlowPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Sign-in</title></head>
<body><p>No sign-in is waiting for this redirect.</p></body></html>`

// Mount registers GET CallbackPath on r.
func (b *LoopbackBrowser) Mount(r chi.Router) {
	r.Get(CallbackPath, b.handleCallback)
}

func (b *LoopbackBrowser) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	// Tokens still sit in the fragment, which the browser did not send.
	if q := r.URL.Query(); q.Get("access_token") == "" && q.Get("error") == "" {
		_, _ = w.Write([]byte(fragmentRelayPage))
		return
	}

	if !b.Deliver(r.URL.String()) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(noFlowPage))
		return
	}
	_, _ = w.Write([]byte(donePage))
}

// ListenAndServe runs a callback-only listener on addr until ctx is done.
func (b *LoopbackBrowser) ListenAndServe(ctx context.Context, addr string) error {
	r := chi.NewRouter()
	b.Mount(r)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("oauth: listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
