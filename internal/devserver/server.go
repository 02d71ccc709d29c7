// Package devserver is an in-memory implementation of the taskflow REST API
// for local development and integration tests. It issues real JWTs, hashes
// passwords with bcrypt and enforces project ownership, but keeps all state
// in process memory.
package devserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Config configures a Server.
type Config struct {
	Addr       string
	Secret     []byte
	AccessTTL  time.Duration // default 15m
	RefreshTTL time.Duration // default 30 days
	// RotateRefresh issues a new refresh token on every /refresh call.
	RotateRefresh bool
	BcryptCost    int
	// LockoutThreshold failed logins lock an account for LockoutDuration.
	// Zero disables lockout.
	LockoutThreshold int
	LockoutDuration  time.Duration
	// Seed loads sample data on start.
	Seed bool
}

func (c *Config) setDefaults() error {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:5000"
	}
	if len(c.Secret) == 0 {
		c.Secret = make([]byte, 32)
		if _, err := rand.Read(c.Secret); err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	return nil
}

// Server is the development backend.
type Server struct {
	cfg     Config
	store   *store
	tokens  *jwtService
	lockout *lockoutTracker
	logger  *zap.Logger
	router  chi.Router
	server  *http.Server

	refreshCalls atomic.Int64
	// refreshGate, when set, blocks /refresh until it is closed.
	refreshGate atomic.Pointer[chan struct{}]
}

// New creates a server. Nothing is listening until Start.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		store:   newStore(cfg.BcryptCost),
		tokens:  newJWTService(cfg.Secret, cfg.AccessTTL, cfg.RefreshTTL),
		lockout: newLockoutTracker(cfg.LockoutThreshold, cfg.LockoutDuration),
		logger:  logger,
	}
	if cfg.Seed {
		if err := s.store.Seed(); err != nil {
			return nil, err
		}
	}
	s.router = s.setupRouter()
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger(s.logger))
	r.Use(prometheusMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/enums", s.handleEnums)
		r.Post("/init-db", s.handleInitDB)
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.With(s.refreshGateMiddleware, s.requireToken(tokenTypeRefresh)).Post("/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken(tokenTypeAccess))

			r.Post("/logout", s.handleLogout)
			r.Get("/users", s.handleListUsers)
			r.Get("/users/{userID}", s.handleGetUser)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.handleListProjects)
				r.Post("/", s.handleCreateProject)
				r.Route("/{projectID}", func(r chi.Router) {
					r.Get("/", s.handleGetProject)
					r.Put("/", s.handleUpdateProject)
					r.Delete("/", s.handleDeleteProject)
					r.Get("/members", s.handleListMembers)
					r.Post("/members", s.handleAddMember)
					r.Put("/members/{userID}", s.handleUpdateMember)
					r.Delete("/members/{userID}", s.handleRemoveMember)
				})
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.handleListTasks)
				r.Post("/", s.handleCreateTask)
				r.Route("/{taskID}", func(r chi.Router) {
					r.Get("/", s.handleGetTask)
					r.Put("/", s.handleUpdateTask)
					r.Delete("/", s.handleDeleteTask)
					r.Post("/assignees", s.handleAssignTask)
					r.Get("/comments", s.handleListComments)
					r.Post("/comments", s.handleAddComment)
				})
			})

			r.Route("/comments/{commentID}", func(r chi.Router) {
				r.Put("/", s.handleUpdateComment)
				r.Delete("/", s.handleDeleteComment)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("dev server listening", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dev server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down dev server")
	return s.server.Shutdown(ctx)
}

// Seed replaces all data with the sample dataset.
func (s *Server) Seed() error {
	return s.store.Seed()
}

// ExpireAccessTokens invalidates every access token issued so far, as if
// they had all reached their expiry.
func (s *Server) ExpireAccessTokens() {
	s.tokens.revokeAll(tokenTypeAccess)
}

// ExpireRefreshTokens invalidates every refresh token issued so far.
func (s *Server) ExpireRefreshTokens() {
	s.tokens.revokeAll(tokenTypeRefresh)
}

// RefreshCalls returns how many /refresh requests were received, valid or
// not.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// refreshGateMiddleware counts /refresh requests and holds them while a
// HoldRefresh gate is set.
func (s *Server) refreshGateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if gate := s.refreshGate.Load(); gate != nil {
			select {
			case <-*gate:
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HoldRefresh makes /refresh block until the returned release func is
// called. Calls already waiting are released too.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.refreshGate.Store(&gate)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			s.refreshGate.CompareAndSwap(&gate, nil)
			close(gate)
		}
	}
}
