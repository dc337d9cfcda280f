package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"golang.org/x/crypto/bcrypt"
)

func testAuthHandler(t *testing.T) *AuthHandler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return NewAuthHandler(middleware.NewAuthenticator(config.WebConfig{
		AdminUser:         "admin",
		AdminPasswordHash: string(hash),
		JWTSecret:         "test-secret",
	}))
}

func TestAuthHandler_Login(t *testing.T) {
	h := testAuthHandler(t)

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantSuccess bool
	}{
		{"valid", `{"username": "admin", "password": "s3cret"}`, http.StatusOK, true},
		{"wrong password", `{"username": "admin", "password": "nope"}`, http.StatusUnauthorized, false},
		{"unknown user", `{"username": "root", "password": "s3cret"}`, http.StatusUnauthorized, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Login(recorder, httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(tc.body)))

			assertStatusCode(t, recorder, tc.wantStatus)
			assertContentType(t, recorder, "application/json")
			var resp LoginResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.Success != tc.wantSuccess {
				t.Errorf("success = %v, want %v", resp.Success, tc.wantSuccess)
			}
			if tc.wantSuccess && (resp.Token == "" || resp.ExpiresAt == "") {
				t.Errorf("response = %+v, want token and expiry", resp)
			}
			if !tc.wantSuccess && resp.Error != "invalid credentials" {
				t.Errorf("error = %q, want 'invalid credentials'", resp.Error)
			}
		})
	}
}

func TestAuthHandler_Login_BadRequest(t *testing.T) {
	h := testAuthHandler(t)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid json", `{"username":`, errInvalidRequestBody},
		{"missing password", `{"username": "admin"}`, "username and password are required"},
		{"missing username", `{"password": "s3cret"}`, "username and password are required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Login(recorder, httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(tc.body)))

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tc.wantErr)
		})
	}
}

func TestAuthHandler_Login_Disabled(t *testing.T) {
	h := NewAuthHandler(middleware.NewAuthenticator(config.WebConfig{}))

	recorder := httptest.NewRecorder()
	h.Login(recorder, httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(`{"username": "admin", "password": "x"}`)))

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestAuthHandler_Status(t *testing.T) {
	h := testAuthHandler(t)

	login := httptest.NewRecorder()
	h.Login(login, httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(`{"username": "admin", "password": "s3cret"}`)))
	var lr LoginResponse
	parseJSONResponse(t, login, &lr)

	tests := []struct {
		name              string
		header            string
		wantAuthenticated bool
	}{
		{"valid token", "Bearer " + lr.Token, true},
		{"no token", "", false},
		{"bad token", "Bearer garbage", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/auth/status", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			recorder := httptest.NewRecorder()
			h.Status(recorder, req)

			assertStatusCode(t, recorder, http.StatusOK)
			var resp StatusResponse
			parseJSONResponse(t, recorder, &resp)
			if !resp.Enabled || resp.Authenticated != tc.wantAuthenticated {
				t.Errorf("status = %+v, want authenticated %v", resp, tc.wantAuthenticated)
			}
			if tc.wantAuthenticated && resp.ExpiresAt != lr.ExpiresAt {
				t.Errorf("expires_at = %s, want %s", resp.ExpiresAt, lr.ExpiresAt)
			}
		})
	}
}

func TestAuthHandler_Status_Disabled(t *testing.T) {
	h := NewAuthHandler(middleware.NewAuthenticator(config.WebConfig{}))

	recorder := httptest.NewRecorder()
	h.Status(recorder, httptest.NewRequest("GET", "/api/v1/auth/status", nil))

	var resp StatusResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Enabled || !resp.Authenticated {
		t.Errorf("status = %+v, want disabled and authenticated", resp)
	}
}
