// Package client is the authenticated gateway to the taskflow backend. Every
// call carries the session's bearer token; a 401 triggers a single-flight
// token renewal and one retry, and an unrecoverable failure ends the
// session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/taskflow/internal/metrics"
	"github.com/good-yellow-bee/taskflow/internal/models"
	"github.com/good-yellow-bee/taskflow/internal/session"
	"github.com/good-yellow-bee/taskflow/pkg/config"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://localhost:5000/api"

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 10 << 20

// Navigator moves the user interface to the unauthenticated entry point
// (the sign-in screen) after a forced logout.
type Navigator interface {
	// AtEntry reports whether the UI is already at the entry point.
	AtEntry() bool
	// ToEntry navigates to the entry point.
	ToEntry()
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration // per-request timeout (default 15s)
	RefreshTimeout time.Duration // token renewal timeout (default 30s)
	RateLimit      float64       // requests per second, 0 = unlimited
	Burst          int
	HTTPClient     *http.Client
	Navigator      Navigator
	Logger         *zap.Logger
}

// Client wraps every backend call with session credentials.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	store     *session.Store
	refresher *Refresher
	limiter   *rate.Limiter
	nav       Navigator
	logger    *zap.Logger
}

// New creates a client bound to store.
func New(store *session.Store, cfg Config) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https: %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		baseURL: base,
		http:    httpClient,
		store:   store,
		nav:     cfg.Navigator,
		logger:  cfg.Logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	c.refresher = NewRefresher(store, c.refreshToken, c.forceLogout, cfg.RefreshTimeout, cfg.Logger.Named("refresh"))
	return c, nil
}

// Session returns the store the client authenticates with.
func (c *Client) Session() *session.Store {
	return c.store
}

// request describes one backend call. body is pre-encoded so a retry can
// replay it.
type request struct {
	method string
	path   string
	query  url.Values
	body   []byte

	// noRefresh marks auth endpoints whose 401 means bad credentials.
	noRefresh bool
	// bearer overrides the session access token.
	bearer string
}

// do sends req, renewing the session once on 401, and decodes a 2xx body
// into out (if non-nil).
func (c *Client) do(ctx context.Context, req *request, out any) error {
	token := req.bearer
	if token == "" && !req.noRefresh {
		token = c.store.AccessToken()
	}

	status, body, err := c.send(ctx, req, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !req.noRefresh {
		c.logger.Debug("access token rejected", zap.String("method", req.method), zap.String("path", req.path))

		renewed, err := c.refresher.Renew(ctx, token)
		if err != nil {
			return err
		}

		metrics.ClientRetriesTotal.Inc()
		status, body, err = c.send(ctx, req, renewed)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			cause := fmt.Errorf("%s %s rejected after token renewal", req.method, req.path)
			c.forceLogout(ctx, cause)
			return sessionExpired(cause)
		}
	}

	if status < 200 || status > 299 {
		apiErr := statusError(status, body)
		if req.noRefresh && status == http.StatusUnauthorized {
			// Bad credentials on an auth endpoint, not an expired session.
			apiErr.Kind = KindValidation
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

// send performs a single HTTP exchange and returns status and body.
func (c *Client) send(ctx context.Context, req *request, token string) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", config.UserAgent())
	httpReq.Header.Set("X-Request-ID", uuid.New().String())
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ClientRequestsTotal.WithLabelValues(req.method, "error").Inc()
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		c.logger.Warn("request failed", zap.String("method", req.method), zap.String("path", req.path), zap.Error(err))
		return 0, nil, networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, networkError(fmt.Errorf("read response: %w", err))
	}

	metrics.ClientRequestsTotal.WithLabelValues(req.method, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug("request",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	return resp.StatusCode, data, nil
}

// refreshToken calls POST /refresh with the refresh token as bearer.
func (c *Client) refreshToken(ctx context.Context, refreshToken string) (*models.RefreshResponse, error) {
	req := &request{method: http.MethodPost, path: "/refresh", noRefresh: true, bearer: refreshToken}

	var out models.RefreshResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// forceLogout ends the session after an unrecoverable auth failure and
// sends the UI to the sign-in screen unless it is already there.
func (c *Client) forceLogout(ctx context.Context, cause error) {
	ctx = context.WithoutCancel(ctx)

	if c.store.SignedIn() {
		metrics.ForcedLogoutsTotal.Inc()
		c.logger.Warn("session terminated", zap.Error(cause))
	}
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("clear session", zap.Error(err))
	}
	c.toEntry()
}

func (c *Client) toEntry() {
	if c.nav != nil && !c.nav.AtEntry() {
		c.nav.ToEntry()
	}
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}
