package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/leafbox/leafbox-core/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  string `json:"user"`
}

// validateRequest accepts {"token":"..."} and the dashboard's older
// {"token":{"value":"..."}}.
type validateRequest struct {
	Token json.RawMessage `json:"token"`
}

func (v validateRequest) value() string {
	var s string
	if err := json.Unmarshal(v.Token, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(v.Token, &wrapped); err == nil {
		return strings.TrimSpace(wrapped.Value)
	}
	return ""
}

// handleRegister creates an account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.auth.Register(r.Context(), reg)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidUser):
		writeValidationError(w, err)
		return
	case errors.Is(err, auth.ErrUsernameExists):
		writeConflict(w, "Username already exists")
		return
	default:
		s.logger.Error("register user failed", "error", err)
		writeInternalError(w, "failed to register user")
		return
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  http.StatusOK,
		"message": "User registered",
	})
}

// handleLogin verifies credentials and returns an access token with the
// user's display name.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	token, user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "User not found")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "Invalid password")
		return
	default:
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user.Name})
}

// handleRegistered reports whether any account exists, so the dashboard
// can offer first-run registration.
func (s *Server) handleRegistered(w http.ResponseWriter, r *http.Request) {
	registered, err := s.auth.Registered(r.Context())
	if err != nil {
		s.logger.Error("registered check failed", "error", err)
		writeInternalError(w, "failed to check registration")
		return
	}
	writeJSON(w, http.StatusOK, registered)
}

// handleValidate checks an access token and returns its claims.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims, err := s.auth.Validate(req.value())
	if err != nil {
		if auth.IsAuthError(err) {
			writeUnauthorized(w, "invalid or expired token")
			return
		}
		s.logger.Error("token validation failed", "error", err)
		writeInternalError(w, "failed to validate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   claims.UserID,
		"user_name": claims.UserName,
		"exp":       claims.ExpiresAt,
	})
}
