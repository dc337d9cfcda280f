package web

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/mock"
	"github.com/kozaktomas/face-attendance/internal/raster"
	_ "github.com/kozaktomas/face-attendance/internal/recognition/lbph"
	"github.com/kozaktomas/face-attendance/internal/samples"
	"github.com/kozaktomas/face-attendance/internal/session"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"golang.org/x/crypto/bcrypt"
)

func testServer(t *testing.T, passwordHash string) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage:     config.StorageConfig{ModelPath: filepath.Join(dir, "model.gob")},
		Recognition: config.RecognitionConfig{Backend: "lbph", Threshold: 70},
		Web: config.WebConfig{
			Host:              "127.0.0.1",
			Port:              0,
			AdminUser:         "admin",
			AdminPasswordHash: passwordHash,
			JWTSecret:         "test-secret",
		},
	}
	store := samples.NewStore(filepath.Join(dir, "dataset"), raster.Square(200))
	det := &mock.MockDetector{Regions: []image.Rectangle{image.Rect(0, 0, 50, 50)}}
	return NewServer(cfg, Deps{
		Samples:  store,
		Detector: det,
		Ledger:   ledger.OpenCSV(filepath.Join(dir, "attendance.csv")),
		Jobs:     session.NewManager(session.Env{Detector: det, Samples: store}),
	})
}

func serve(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestServer_RoutesWithoutAuth(t *testing.T) {
	s := testServer(t, "")

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{"GET", "/api/v1/health", http.StatusOK},
		{"GET", "/api/v1/identities", http.StatusOK},
		{"GET", "/api/v1/attendance", http.StatusOK},
		{"GET", "/api/v1/attendance/today", http.StatusOK},
		{"GET", "/api/v1/sessions", http.StatusOK},
		{"GET", "/api/v1/sessions/nope", http.StatusNotFound},
		{"GET", "/api/v1/model", http.StatusOK},
		{"POST", "/api/v1/train", http.StatusUnprocessableEntity},
		{"GET", "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			recorder := serve(s, tc.method, tc.path, "", "")
			if recorder.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d\nBody: %s", recorder.Code, tc.wantStatus, recorder.Body.String())
			}
		})
	}
}

func TestServer_RequiresToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	s := testServer(t, string(hash))

	if rec := serve(s, "GET", "/api/v1/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
	if rec := serve(s, "GET", "/api/v1/attendance", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("attendance without token = %d, want 401", rec.Code)
	}

	login := serve(s, "POST", "/api/v1/auth/login", "", `{"username": "admin", "password": "s3cret"}`)
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d\nBody: %s", login.Code, login.Body.String())
	}
	var resp handlers.LoginResponse
	if err := json.Unmarshal(login.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse login response: %v", err)
	}

	if rec := serve(s, "GET", "/api/v1/attendance", resp.Token, ""); rec.Code != http.StatusOK {
		t.Errorf("attendance with token = %d, want 200", rec.Code)
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	s := testServer(t, "")
	rec := serve(s, "GET", "/api/v1/health", "", "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", rec.Header().Get("X-Content-Type-Options"))
	}
}
