// Package session holds the client's authenticated state: the signed-in
// user and the access/refresh token pair, persisted as three independent
// durable keys.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/taskflow/internal/models"
	"github.com/good-yellow-bee/taskflow/internal/storage"
)

// Durable keys.
const (
	KeyUser         = "user"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

var allKeys = []string{KeyUser, KeyAccessToken, KeyRefreshToken}

var (
	// ErrNoSession is returned by Load when nothing is persisted.
	ErrNoSession = errors.New("no session")

	// ErrCorruptSession is returned by Load when only some keys are
	// persisted or the profile cannot be decoded.
	ErrCorruptSession = errors.New("corrupt session state")
)

// Store owns the session. It is the only writer of session state; other
// components read through Current and Tokens.
type Store struct {
	kv     storage.KV
	logger *zap.Logger

	mu      sync.RWMutex
	current *models.Session
}

// NewStore creates a store backed by kv.
func NewStore(kv storage.KV, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger}
}

// Init restores the persisted session at process start. Corrupt state is
// cleared and reported as ErrCorruptSession so the caller can treat it as a
// forced logout; a missing session returns ErrNoSession.
func (s *Store) Init(ctx context.Context) (*models.Session, error) {
	sess, err := s.Load(ctx)
	if errors.Is(err, ErrCorruptSession) {
		s.logger.Warn("discarding corrupt session state", zap.Error(err))
		if clearErr := s.Clear(ctx); clearErr != nil {
			return nil, fmt.Errorf("clear corrupt session: %w", clearErr)
		}
	}
	return sess, err
}

// Save persists sess and makes it visible to all readers.
func (s *Store) Save(ctx context.Context, sess *models.Session) error {
	if sess == nil {
		return fmt.Errorf("save session: nil session")
	}
	if sess.AccessToken == "" || sess.RefreshToken == "" {
		return fmt.Errorf("save session: access and refresh tokens are required")
	}

	profile, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.kv.PutMany(ctx, map[string]string{
		KeyUser:         string(profile),
		KeyAccessToken:  sess.AccessToken,
		KeyRefreshToken: sess.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	saved := *sess
	s.current = &saved
	s.logger.Debug("session saved", zap.Int64("user_id", sess.User.ID))
	return nil
}

// Load reads the session from durable storage and makes it current. When
// nothing usable is stored the in-memory session is dropped as well.
func (s *Store) Load(ctx context.Context) (*models.Session, error) {
	values, err := s.kv.GetMany(ctx, allKeys...)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	if len(values) == 0 {
		s.drop()
		return nil, ErrNoSession
	}
	for _, k := range allKeys {
		if values[k] == "" {
			s.drop()
			return nil, fmt.Errorf("%w: %s missing", ErrCorruptSession, k)
		}
	}

	var user models.User
	if err := json.Unmarshal([]byte(values[KeyUser]), &user); err != nil {
		s.drop()
		return nil, fmt.Errorf("%w: decode profile: %v", ErrCorruptSession, err)
	}

	sess := &models.Session{
		User:         user,
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	out := *sess
	return &out, nil
}

// drop forgets the in-memory session without touching durable state.
func (s *Store) drop() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Clear deletes every persisted key and drops the in-memory session.
// Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, allKeys...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if s.current != nil {
		s.logger.Debug("session cleared", zap.Int64("user_id", s.current.User.ID))
	}
	s.current = nil
	return nil
}

// SetTokens replaces the credential pair in place after a renewal. An
// empty refresh keeps the existing refresh token.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	if access == "" {
		return fmt.Errorf("set tokens: empty access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoSession
	}

	entries := map[string]string{KeyAccessToken: access}
	if refresh != "" {
		entries[KeyRefreshToken] = refresh
	}
	if err := s.kv.PutMany(ctx, entries); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}

	next := *s.current
	next.AccessToken = access
	if refresh != "" {
		next.RefreshToken = refresh
	}
	s.current = &next
	return nil
}

// Current returns a copy of the session, or nil when signed out.
func (s *Store) Current() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	out := *s.current
	return &out
}

// Tokens returns the current credential pair. Both are empty when signed
// out; the pair is never observed half-updated.
func (s *Store) Tokens() (access, refresh string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return "", ""
	}
	return s.current.AccessToken, s.current.RefreshToken
}

// AccessToken returns the current access token, or "".
func (s *Store) AccessToken() string {
	access, _ := s.Tokens()
	return access
}

// SignedIn reports whether a session is present.
func (s *Store) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}
