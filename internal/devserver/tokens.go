package devserver

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims represents the JWT claims for issued tokens.
type Claims struct {
	jwt.RegisteredClaims
	Type       string `json:"type"`
	Generation int64  `json:"gen"`
}

// jwtService issues and validates access and refresh tokens.
type jwtService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string

	mu sync.Mutex
	// Tokens of a type issued with an older generation are rejected.
	generation map[string]int64
	revoked    map[string]time.Time // jti -> revoked at
}

func newJWTService(secret []byte, accessTTL, refreshTTL time.Duration) *jwtService {
	return &jwtService{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "taskflow-dev",
		generation: map[string]int64{tokenTypeAccess: 0, tokenTypeRefresh: 0},
		revoked:    make(map[string]time.Time),
	}
}

func (s *jwtService) generate(userID int64, typ string) (string, error) {
	ttl := s.accessTTL
	if typ == tokenTypeRefresh {
		ttl = s.refreshTTL
	}

	s.mu.Lock()
	gen := s.generation[typ]
	s.mu.Unlock()

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:       typ,
		Generation: gen,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// validate parses a token of the expected type and returns the user id.
func (s *jwtService) validate(tokenString, typ string) (int64, *Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, nil, fmt.Errorf("invalid token claims")
	}
	if claims.Issuer != s.issuer {
		return 0, nil, fmt.Errorf("invalid issuer")
	}
	if claims.Type != typ {
		return 0, nil, fmt.Errorf("expected %s token, got %q", typ, claims.Type)
	}

	s.mu.Lock()
	gen := s.generation[typ]
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()

	if claims.Generation < gen {
		return 0, nil, fmt.Errorf("token revoked")
	}
	if revoked {
		return 0, nil, fmt.Errorf("token revoked")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid subject: %w", err)
	}
	return userID, claims, nil
}

// revokeAll invalidates every token of typ issued so far.
func (s *jwtService) revokeAll(typ string) {
	s.mu.Lock()
	s.generation[typ]++
	s.mu.Unlock()
}

func (s *jwtService) revoke(jti string) {
	s.mu.Lock()
	s.revoked[jti] = time.Now()
	s.mu.Unlock()
}
