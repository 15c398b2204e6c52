package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/pkg/circuitbreaker"
	"github.com/jkcollege/school-portal/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the project URL, e.g. https://abcd.supabase.co
	BaseURL string

	// AnonKey is sent as the apikey header on every request
	AnonKey string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	MaxRetries     int
	RetryBaseDelay time.Duration

	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	RateLimiterConfig RateLimiterConfig

	// HTTPClient overrides the transport (tests)
	HTTPClient *http.Client

	// Logger for structured logging
	Logger *slog.Logger

	// OnBreakerStateChange is called on circuit transitions
	OnBreakerStateChange func(name string, from, to circuitbreaker.State)
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, anonKey string) ClientConfig {
	return ClientConfig{
		BaseURL:                 baseURL,
		AnonKey:                 anonKey,
		Timeout:                 15 * time.Second,
		MaxRetries:              3,
		RetryBaseDelay:          200 * time.Millisecond,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RateLimiterConfig:       DefaultRateLimiterConfig(),
	}
}

// maxResponseBytes caps response bodies read into memory.
const maxResponseBytes = 4 << 20

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to one backend project. It holds the current access token
// the way the mobile SDK does: set by sign-in, refresh and SetSession,
// cleared by SignOut.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
	mapper      *Mapper

	// Token management
	accessToken string
	tokenMu     sync.RWMutex
}

// NewClient creates a new backend client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	logger := config.Logger.With(slog.String("component", "supabase"))
	onChange := config.OnBreakerStateChange

	return &Client{
		config:      config,
		httpClient:  httpClient,
		logger:      logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker: circuitbreaker.BackendBreaker(
			config.CircuitBreakerThreshold,
			config.CircuitBreakerTimeout,
			isBreakerFailure,
			func(name string, from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state changed",
					slog.String("from", from.String()),
					slog.String("to", to.String()))
				if onChange != nil {
					onChange(name, from, to)
				}
			},
		),
		retrier: retry.BackendRetrier(config.MaxRetries, config.RetryBaseDelay,
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				logger.Debug("retrying backend request",
					slog.Int("attempt", attempt),
					slog.Duration("delay", delay),
					slog.String("error", err.Error()))
			}),
		),
		mapper: NewMapper(),
	}
}

// isBreakerFailure counts outages only. Rejected credentials, validation
// failures and 429s say nothing about backend health.
func isBreakerFailure(err error) bool {
	return errors.Is(err, shared.ErrNetwork) ||
		errors.Is(err, shared.ErrServiceUnavailable) ||
		errors.Is(err, shared.ErrTimeout)
}

// SetAccessToken replaces the bearer used for data requests.
func (c *Client) SetAccessToken(token string) {
	c.tokenMu.Lock()
	c.accessToken = token
	c.tokenMu.Unlock()
}

// AccessToken returns the current bearer, empty when signed out.
func (c *Client) AccessToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.accessToken
}

func (c *Client) bearer() string {
	if t := c.AccessToken(); t != "" {
		return t
	}
	return c.config.AnonKey
}

// ══════════════════════════════════════════════════════════════════════════════
// API ERROR
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string

	// Auth carries the GoTrue error body, when the request was an auth call
	Auth AuthErrorDTO
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the shared taxonomy.
func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrServiceUnavailable:
		return e.StatusCode >= 500
	case shared.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case shared.ErrAlreadyExists:
		return e.StatusCode == http.StatusConflict || e.Code == "23505" || e.Auth.ErrorCode == "user_already_exists"
	case shared.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func parseAPIError(status int, body []byte, auth bool) *APIError {
	apiErr := &APIError{StatusCode: status}

	if auth {
		var dto AuthErrorDTO
		if json.Unmarshal(body, &dto) == nil {
			apiErr.Auth = dto
			apiErr.Code = dto.ErrorCode
			if apiErr.Code == "" {
				apiErr.Code = dto.Error
			}
			apiErr.Message = dto.Text()
		}
	} else {
		var dto RestErrorDTO
		if json.Unmarshal(body, &dto) == nil {
			apiErr.Code = dto.Code
			apiErr.Message = dto.Message
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	header http.Header

	// token overrides the client bearer
	token string
	// auth selects the GoTrue error format
	auth bool
}

// doRequest performs an HTTP request through breaker and retry.
func (c *Client) doRequest(ctx context.Context, op string, req request, result any) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doSingleRequest(ctx, op, req, result)
		})
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return shared.NewNetworkError("supabase", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return shared.WrapError("supabase", op, shared.ErrTimeout, "request timed out", err)
	}
	return err
}

// doSingleRequest performs one HTTP exchange. Transport failures, 429 and
// 5xx come back marked retryable.
func (c *Client) doSingleRequest(ctx context.Context, op string, req request, result any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return retry.Permanent(err)
	}

	fullURL := c.config.BaseURL + req.path
	if len(req.query) > 0 {
		fullURL += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	if req.body != nil {
		jsonBody, err := json.Marshal(req.body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, fullURL, bodyReader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	token := req.token
	if token == "" {
		token = c.bearer()
	}
	httpReq.Header.Set("apikey", c.config.AnonKey)
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return retry.Retryable(shared.NewNetworkError("supabase", op, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return retry.Retryable(shared.NewNetworkError("supabase", op, fmt.Errorf("read response: %w", err)))
	}

	c.logger.Debug("backend request",
		slog.String("operation", op),
		slog.String("method", req.method),
		slog.String("path", req.path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)))

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.rateLimiter.RecordRateLimitHit(retryAfter)
		apiErr := parseAPIError(resp.StatusCode, respBody, req.auth)
		return retry.Retryable(shared.WrapError("supabase", op, shared.ErrRemote, apiErr.Message, apiErr))
	}

	if resp.StatusCode >= 400 {
		apiErr := parseAPIError(resp.StatusCode, respBody, req.auth)
		domainErr := shared.WrapError("supabase", op, shared.ErrRemote, apiErr.Message, apiErr)
		if resp.StatusCode >= 500 {
			return retry.Retryable(domainErr)
		}
		return domainErr
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return shared.WrapError("supabase", op, shared.ErrRemote, "unexpected response body", err)
		}
	}

	return nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECK
// ══════════════════════════════════════════════════════════════════════════════

// Ping checks the auth service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, "Ping", request{
		method: http.MethodGet,
		path:   authPath + "/health",
		auth:   true,
	}, nil)
}

// IsHealthy reports whether the circuit is closed.
func (c *Client) IsHealthy() bool {
	return c.breaker.State() == circuitbreaker.StateClosed
}

// ClientStatus contains the current status of the client.
type ClientStatus struct {
	BreakerState  string
	Breaker       circuitbreaker.Counts
	RateLimiter   RateLimiterStatus
	Authenticated bool
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		BreakerState:  c.breaker.State().String(),
		Breaker:       c.breaker.Counts(),
		RateLimiter:   c.rateLimiter.Status(),
		Authenticated: c.AccessToken() != "",
	}
}
