package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/raster"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/samples"
	"github.com/kozaktomas/face-attendance/internal/session"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	log "github.com/sirupsen/logrus"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// editor names the authenticated user behind a change.
func editor(r *http.Request) string {
	if c := middleware.GetClaimsFromContext(r.Context()); c != nil {
		return sanitizeForLog(c.Username)
	}
	return "anonymous"
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrRowNotFound), errors.Is(err, session.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidRecord),
		errors.Is(err, identity.ErrInvalidIdentity),
		errors.Is(err, raster.ErrEmptyRegion):
		return http.StatusBadRequest
	case errors.Is(err, recognition.ErrModelMissing),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrRunning),
		errors.Is(err, samples.ErrLabelTaken):
		return http.StatusConflict
	case errors.Is(err, recognition.ErrNoSamples):
		return http.StatusUnprocessableEntity
	case errors.Is(err, camera.ErrCamera):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondErr logs server-side failures and sends err with its mapped status.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", sanitizeForLog(r.URL.Path)).Error("request failed")
	}
	respondError(w, status, err.Error())
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
