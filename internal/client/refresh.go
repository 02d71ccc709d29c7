package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/taskflow/internal/metrics"
	"github.com/good-yellow-bee/taskflow/internal/models"
	"github.com/good-yellow-bee/taskflow/internal/session"
)

// ErrNoRefreshToken is the cause recorded when a renewal is needed but the
// session holds no refresh token.
var ErrNoRefreshToken = errors.New("no refresh token")

// RenewFunc exchanges a refresh token for a new access token.
type RenewFunc func(ctx context.Context, refreshToken string) (*models.RefreshResponse, error)

type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
)

func (s refreshState) String() string {
	if s == stateRefreshing {
		return "refreshing"
	}
	return "idle"
}

type refreshResult struct {
	token string
	err   error
}

// Refresher coordinates token renewal so that at most one renewal is in
// flight. Callers that need a token while a renewal runs are queued and
// released together when it finishes.
type Refresher struct {
	store   *session.Store
	renew   RenewFunc
	onFatal func(ctx context.Context, cause error)
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	state   refreshState
	waiters []chan refreshResult
}

// NewRefresher creates a coordinator. onFatal runs exactly once per failed
// renewal, before any queued caller is released. It is also called when a
// renewal is needed and no refresh token is held, so it must tolerate
// running against an already cleared store.
func NewRefresher(store *session.Store, renew RenewFunc, onFatal func(context.Context, error), timeout time.Duration, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Refresher{
		store:   store,
		renew:   renew,
		onFatal: onFatal,
		timeout: timeout,
		logger:  logger,
	}
}

// Renew returns an access token newer than stale. If the store already
// holds a different token (another flow renewed in the meantime) it is
// returned without a network call. Otherwise the caller joins the current
// renewal, starting one if none is running.
//
// A cancelled ctx stops this caller from waiting; the renewal itself keeps
// running for the other waiters.
func (r *Refresher) Renew(ctx context.Context, stale string) (string, error) {
	r.mu.Lock()

	if r.state == stateIdle {
		access, refresh := r.store.Tokens()
		if access != "" && access != stale {
			r.mu.Unlock()
			return access, nil
		}
		if refresh == "" {
			r.mu.Unlock()
			metrics.RefreshTotal.WithLabelValues("no_token").Inc()
			r.logger.Info("renewal impossible without refresh token")
			// Also reached by a late 401 after a failed renewal already
			// cleared the store. onFatal must be idempotent: clearing an
			// empty store is a no-op and the navigator ignores a second
			// move to the entry point.
			r.onFatal(ctx, ErrNoRefreshToken)
			return "", sessionExpired(ErrNoRefreshToken)
		}

		r.state = stateRefreshing
		ch := r.enqueueLocked()
		r.mu.Unlock()

		r.logger.Debug("token renewal started")
		go r.run(context.WithoutCancel(ctx), refresh)
		return r.wait(ctx, ch)
	}

	ch := r.enqueueLocked()
	r.mu.Unlock()
	return r.wait(ctx, ch)
}

// State reports whether a renewal is in flight. Used by tests and logs.
func (r *Refresher) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.String()
}

func (r *Refresher) enqueueLocked() chan refreshResult {
	ch := make(chan refreshResult, 1)
	r.waiters = append(r.waiters, ch)
	metrics.RefreshWaiters.Inc()
	return ch
}

func (r *Refresher) wait(ctx context.Context, ch <-chan refreshResult) (string, error) {
	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// run performs the renewal and settles every queued waiter in one batch.
func (r *Refresher) run(ctx context.Context, refreshToken string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	token, err := r.exchange(ctx, refreshToken)

	var result refreshResult
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		r.logger.Warn("token renewal failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		// Logout happens while still Refreshing so no new renewal can start
		// with the dead refresh token.
		r.onFatal(ctx, err)
		result = refreshResult{err: sessionExpired(err)}
	} else {
		metrics.RefreshTotal.WithLabelValues("success").Inc()
		r.logger.Debug("token renewal succeeded", zap.Duration("took", time.Since(start)))
		result = refreshResult{token: token}
	}

	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.state = stateIdle
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- result
	}
	metrics.RefreshWaiters.Sub(float64(len(waiters)))
}

func (r *Refresher) exchange(ctx context.Context, refreshToken string) (string, error) {
	resp, err := r.renew(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if resp == nil || resp.AccessToken == "" {
		return "", fmt.Errorf("refresh response has no access token")
	}
	if err := r.store.SetTokens(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		return "", fmt.Errorf("store renewed token: %w", err)
	}
	return resp.AccessToken, nil
}
