package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"golang.org/x/crypto/bcrypt"
)

func testAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return NewAuthenticator(config.WebConfig{
		AdminUser:         "admin",
		AdminPasswordHash: string(hash),
		JWTSecret:         "test-secret",
	})
}

func TestAuthenticator_Disabled(t *testing.T) {
	a := NewAuthenticator(config.WebConfig{AdminUser: "admin"})
	if a.Enabled() {
		t.Error("Enabled() = true without password hash")
	}
	if _, _, err := a.Login("admin", ""); err == nil {
		t.Error("Login() expected error when disabled")
	}
}

func TestAuthenticator_Login(t *testing.T) {
	a := testAuthenticator(t)

	tests := []struct {
		name     string
		user     string
		password string
		wantErr  error
	}{
		{"valid", "admin", "s3cret", nil},
		{"wrong password", "admin", "nope", ErrInvalidCredentials},
		{"wrong user", "root", "s3cret", ErrInvalidCredentials},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			token, expires, err := a.Login(tc.user, tc.password)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr != nil {
				return
			}
			if token == "" || !expires.After(time.Now()) {
				t.Errorf("Login() = (%q, %v)", token, expires)
			}
			claims, err := a.Verify(token)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if claims.Username != "admin" {
				t.Errorf("Username = %s, want admin", claims.Username)
			}
		})
	}
}

func TestAuthenticator_VerifyRejects(t *testing.T) {
	a := testAuthenticator(t)
	token, _, err := a.Login("admin", "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	other := testAuthenticator(t)
	other.secret = []byte("another-secret")
	if _, err := other.Verify(token); err == nil {
		t.Error("Verify() accepted a token signed with another secret")
	}

	expired := testAuthenticator(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * tokenDuration) }
	old, _, err := expired.Login("admin", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Verify(old); err == nil {
		t.Error("Verify() accepted an expired token")
	}

	if _, err := a.Verify("not.a.token"); err == nil {
		t.Error("Verify() accepted garbage")
	}
}

func TestRequireAuth(t *testing.T) {
	a := testAuthenticator(t)
	token, _, err := a.Login("admin", "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	handlerCalled := false
	protected := RequireAuth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if c := GetClaimsFromContext(r.Context()); c == nil || c.Username != "admin" {
			t.Errorf("claims in context = %v", c)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"query token", "", "?access_token=" + token, http.StatusOK},
		{"no token", "", "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handlerCalled = false
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/protected"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			protected.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tc.wantStatus)
			}
			if handlerCalled != (tc.wantStatus == http.StatusOK) {
				t.Errorf("handlerCalled = %v", handlerCalled)
			}
		})
	}
}

func TestRequireAuth_DisabledPassesThrough(t *testing.T) {
	a := NewAuthenticator(config.WebConfig{})
	called := false
	h := RequireAuth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("handler not called with authentication disabled")
	}
}

func TestGetClaimsFromContext(t *testing.T) {
	ctx := SetClaimsInContext(context.Background(), &Claims{Username: "admin"})
	if c := GetClaimsFromContext(ctx); c == nil || c.Username != "admin" {
		t.Errorf("GetClaimsFromContext() = %v", c)
	}
	if c := GetClaimsFromContext(context.Background()); c != nil {
		t.Error("GetClaimsFromContext() should return nil for empty context")
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://kiosk.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"allowed", "GET", "https://kiosk.example", "https://kiosk.example", http.StatusTeapot},
		{"localhost", "GET", "http://localhost:5173", "http://localhost:5173", http.StatusTeapot},
		{"other", "GET", "https://evil.example", "", http.StatusTeapot},
		{"preflight", "OPTIONS", "https://kiosk.example", "https://kiosk.example", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/", nil)
			req.Header.Set("Origin", tc.origin)
			h.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
			if w.Code != tc.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func TestIsLocalhostOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost", true},
		{"http://localhost:5173", true},
		{"https://localhost:8443", true},
		{"http://localhost.evil.example", false},
		{"ftp://localhost", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.origin, func(t *testing.T) {
			if got := isLocalhostOrigin(tc.origin); got != tc.want {
				t.Errorf("isLocalhostOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}
