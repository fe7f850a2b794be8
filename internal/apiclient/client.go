// Package apiclient is the single outbound pipeline to the trip-planner
// backend. It attaches the bearer token to every request and, on a 401,
// refreshes the access token once and re-issues the request once.
package apiclient

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

	"github.com/google/uuid"

	"trip-planner/internal/domain"
	"trip-planner/internal/observability"
)

// RefreshPath is the token refresh endpoint, relative to the base URL
const RefreshPath = "/auth/token/refresh/"

var errNoAccessToken = errors.New("refresh response carried no access token")

// TokenSource is the token storage the client reads and renews
type TokenSource interface {
	ValidAccessToken(ctx context.Context) (string, bool, error)
	RefreshToken(ctx context.Context) (string, bool, error)
	SetAccessToken(ctx context.Context, access string) error
	SetTokens(ctx context.Context, access, refresh string) error
	Clear(ctx context.Context) error
}

// Request describes one backend call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Anonymous requests carry no token and never trigger a refresh
	Anonymous bool
}

// Client handles requests to the backend API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource

	mu             sync.Mutex
	inflight       *refreshCall
	onUnauthorized func(ctx context.Context)
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-attempt timeout of the default http.Client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a backend client rooted at baseURL
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUnauthorized registers the hook run after tokens were cleared because
// the session could not be renewed.
func (c *Client) OnUnauthorized(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// Get issues an authenticated GET
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues an authenticated POST
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Patch issues an authenticated PATCH
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

// Delete issues an authenticated DELETE, with an optional body
func (c *Client) Delete(ctx context.Context, path string, body any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Body: body}, nil)
}

// Do sends req and decodes a successful JSON response into out (which may be nil).
// A 401 on an authenticated request leads to at most one refresh and one re-issue.
// Only a refresh the backend rejects signs the session out; cancellation and
// transport failures are returned with the tokens left in place.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	status, body, err := c.send(ctx, req, payload)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !req.Anonymous {
		if rerr := c.refresh(ctx); rerr != nil {
			observability.FromContext(ctx).Warn("access token refresh failed",
				slog.String("path", req.Path),
				slog.String("error", rerr.Error()),
			)
			if !refreshRejected(rerr) {
				// tokens are kept: the refresh may succeed on a later request
				return fmt.Errorf("token refresh failed: %w", rerr)
			}
			return fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, parseAPIError(status, body))
		}

		status, body, err = c.send(ctx, req, payload)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			// still rejected with a fresh token: give up without another refresh
			c.signOut(ctx)
			return fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, parseAPIError(status, body))
		}
	}

	return decode(status, body, out)
}

func (c *Client) send(ctx context.Context, req Request, payload []byte) (int, []byte, error) {
	endpoint := c.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	requestID, ok := observability.RequestID(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set("X-Request-ID", requestID)

	if !req.Anonymous {
		access, ok, err := c.tokens.ValidAccessToken(ctx)
		if err != nil {
			return 0, nil, err
		}
		// an expired token is never sent; the backend's 401 drives the refresh
		if ok {
			httpReq.Header.Set("Authorization", "Bearer "+access)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	observability.BackendRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.BackendRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return 0, nil, fmt.Errorf("request %s %s failed: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	observability.BackendRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	observability.FromContext(ctx).Debug("backend request",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	return resp.StatusCode, body, nil
}

// refresh renews the access token. Concurrent callers share one in-flight
// refresh, which runs detached from any single caller's context so that one
// caller hanging up does not fail the others.
func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	call := c.inflight
	if call == nil {
		call = &refreshCall{done: make(chan struct{})}
		c.inflight = call
		go c.runRefresh(context.WithoutCancel(ctx), call)
	}
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runRefresh performs the shared refresh. A rejected refresh clears the
// tokens and runs the sign-out hook once, before waiters are released.
func (c *Client) runRefresh(ctx context.Context, call *refreshCall) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout())
	defer cancel()

	err := c.doRefresh(ctx)
	if refreshRejected(err) {
		c.signOut(ctx)
	}

	c.mu.Lock()
	call.err = err
	c.inflight = nil
	c.mu.Unlock()
	close(call.done)
}

func (c *Client) refreshTimeout() time.Duration {
	if c.httpClient.Timeout > 0 {
		return c.httpClient.Timeout
	}
	return 10 * time.Second
}

// refreshRejected reports whether err means the session cannot be renewed,
// as opposed to a transient failure.
func refreshRejected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrNoRefreshToken) || errors.Is(err, errNoAccessToken) {
		return true
	}
	status := StatusCode(err)
	return status == http.StatusBadRequest || status == http.StatusUnauthorized
}

func (c *Client) doRefresh(ctx context.Context) (err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		observability.TokenRefreshTotal.WithLabelValues(result).Inc()
	}()

	refreshToken, ok, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNoRefreshToken
	}

	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return err
	}

	status, body, err := c.send(ctx, Request{Method: http.MethodPost, Path: RefreshPath, Anonymous: true}, payload)
	if err != nil {
		return err
	}

	var pair domain.TokenPair
	if err := decode(status, body, &pair); err != nil {
		return err
	}
	if pair.AccessToken == "" {
		return errNoAccessToken
	}

	if pair.RefreshToken != "" {
		return c.tokens.SetTokens(ctx, pair.AccessToken, pair.RefreshToken)
	}
	return c.tokens.SetAccessToken(ctx, pair.AccessToken)
}

func (c *Client) signOut(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil {
		observability.FromContext(ctx).Error("failed to clear tokens", slog.String("error", err.Error()))
	}

	c.mu.Lock()
	hook := c.onUnauthorized
	c.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
}

func decode(status int, body []byte, out any) error {
	if status < 200 || status >= 300 {
		return parseAPIError(status, body)
	}
	if out == nil || status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid response from backend: %w", err)
	}
	return nil
}

// Ping checks that the backend answers an anonymous catalog request
func (c *Client) Ping(ctx context.Context) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: "/attractions/categories/", Anonymous: true}, nil)
}
