package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/samples"
	"github.com/kozaktomas/face-attendance/internal/session"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{"object", http.StatusOK, map[string]int{"rows": 3}, "{\"rows\":3}\n"},
		{"created", http.StatusCreated, []string{"Asha"}, "[\"Asha\"]\n"},
		{"nil data", http.StatusNoContent, nil, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.status, tc.data)

			assertStatusCode(t, recorder, tc.status)
			assertContentType(t, recorder, "application/json")
			if recorder.Body.String() != tc.wantBody {
				t.Errorf("body = %q, want %q", recorder.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "name is required")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "name is required")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"row not found", fmt.Errorf("update row 9: %w", ledger.ErrRowNotFound), http.StatusNotFound},
		{"job not found", session.ErrJobNotFound, http.StatusNotFound},
		{"invalid record", ledger.ErrInvalidRecord, http.StatusBadRequest},
		{"invalid identity", identity.ErrInvalidIdentity, http.StatusBadRequest},
		{"model missing", recognition.ErrModelMissing, http.StatusConflict},
		{"busy", session.ErrBusy, http.StatusConflict},
		{"label taken", samples.ErrLabelTaken, http.StatusConflict},
		{"no samples", recognition.ErrNoSamples, http.StatusUnprocessableEntity},
		{"camera", fmt.Errorf("open: %w", camera.ErrCamera), http.StatusServiceUnavailable},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestRespondErr_UsesErrorMessage(t *testing.T) {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/api/v1/attendance/9", nil)
	err := fmt.Errorf("delete row 9: %w", ledger.ErrRowNotFound)

	respondErr(recorder, req, err)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, err.Error())
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("/api\r\n/v1\n"); got != "/api/v1" {
		t.Errorf("sanitizeForLog() = %q, want /api/v1", got)
	}
}

func TestHealthCheck(t *testing.T) {
	for _, method := range []string{"GET", "HEAD"} {
		t.Run(method, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			HealthCheck(recorder, httptest.NewRequest(method, "/api/v1/health", nil))

			assertStatusCode(t, recorder, http.StatusOK)
			var result map[string]string
			parseJSONResponse(t, recorder, &result)
			if result["status"] != "ok" {
				t.Errorf("status = %q, want ok", result["status"])
			}
		})
	}
}

func TestEditor(t *testing.T) {
	req := httptest.NewRequest("DELETE", "/api/v1/attendance/1", nil)
	if got := editor(req); got != "anonymous" {
		t.Errorf("editor() without claims = %q, want anonymous", got)
	}

	ctx := middleware.SetClaimsInContext(req.Context(), &middleware.Claims{Username: "admin\n"})
	if got := editor(req.WithContext(ctx)); got != "admin" {
		t.Errorf("editor() = %q, want admin", got)
	}
}
