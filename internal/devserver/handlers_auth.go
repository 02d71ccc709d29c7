package devserver

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
}

func (req *registerRequest) validate() error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case len(req.Username) < 3 || len(req.Username) > 64:
		return errors.New("username must be 3-64 characters")
	case req.Email == "":
		return errors.New("email is required")
	case len(req.Password) < 6:
		return errors.New("password must be at least 6 characters")
	case req.Password != req.ConfirmPassword:
		return errors.New("passwords do not match")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return errors.New("invalid email address")
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message      string      `json:"message"`
	User         models.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (s *Server) issue(w http.ResponseWriter, status int, message string, user *models.User) {
	access, err := s.tokens.generate(user.ID, tokenTypeAccess)
	if err != nil {
		s.logger.Error("sign access token", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	refresh, err := s.tokens.generate(user.ID, tokenTypeRefresh)
	if err != nil {
		s.logger.Error("sign refresh token", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, status, authResponse{Message: message, User: *user, AccessToken: access, RefreshToken: refresh})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.store.createUser(req.Username, req.Email, req.Password, models.ParseRole(req.Role))
	if errors.Is(err, errConflict) {
		jsonError(w, http.StatusConflict, "Username or email already exists")
		return
	}
	if err != nil {
		s.logger.Error("create user", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	s.issue(w, http.StatusCreated, "User registered successfully", user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "email and password required")
		return
	}

	if s.lockout.locked(req.Email) {
		jsonError(w, http.StatusTooManyRequests, "Account temporarily locked due to too many failed attempts")
		return
	}

	user, err := s.store.authenticate(req.Email, req.Password)
	if err != nil {
		if s.lockout.recordFailure(req.Email) {
			s.logger.Warn("account locked", zap.String("email", req.Email))
		}
		jsonError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.lockout.clear(req.Email)

	s.issue(w, http.StatusOK, "Login successful", user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	access, err := s.tokens.generate(userID, tokenTypeAccess)
	if err != nil {
		s.logger.Error("sign access token", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := refreshResponse{AccessToken: access}
	if s.cfg.RotateRefresh {
		if jti, ok := r.Context().Value(tokenJTIKey).(string); ok {
			s.tokens.revoke(jti)
		}
		if resp.RefreshToken, err = s.tokens.generate(userID, tokenTypeRefresh); err != nil {
			s.logger.Error("sign refresh token", zap.Error(err))
			jsonError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if jti, ok := r.Context().Value(tokenJTIKey).(string); ok {
		s.tokens.revoke(jti)
	}
	jsonMessage(w, http.StatusOK, "Successfully logged out")
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
		Service:   "taskflow-api",
	})
}

func (s *Server) handleEnums(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.DefaultEnums())
}

func (s *Server) handleInitDB(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Seed(); err != nil {
		s.logger.Error("seed database", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "Failed to initialize database")
		return
	}
	s.logger.Info("database reseeded")
	jsonMessage(w, http.StatusOK, "Database initialized with sample data")
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.listUsers())
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	u, ok := s.store.user(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
