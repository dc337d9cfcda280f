package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	log "github.com/sirupsen/logrus"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth *middleware.Authenticator
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(a *middleware.Authenticator) *AuthHandler {
	return &AuthHandler{auth: a}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Login exchanges admin credentials for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if !h.auth.Enabled() {
		respondError(w, http.StatusNotFound, "authentication is disabled")
		return
	}

	token, expires, err := h.auth.Login(req.Username, req.Password)
	if errors.Is(err, middleware.ErrInvalidCredentials) {
		log.WithField("user", sanitizeForLog(req.Username)).Warn("failed login")
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Error:   "invalid credentials",
		})
		return
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
	})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Enabled       bool   `json:"enabled"`
	Authenticated bool   `json:"authenticated"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status reports whether authentication is enabled and the caller's
// token is valid.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		respondJSON(w, http.StatusOK, StatusResponse{Enabled: false, Authenticated: true})
		return
	}

	claims, err := h.auth.Verify(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if err != nil {
		respondJSON(w, http.StatusOK, StatusResponse{Enabled: true})
		return
	}
	resp := StatusResponse{Enabled: true, Authenticated: true}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC().Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}
