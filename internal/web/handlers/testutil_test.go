package handlers

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/mock"
	"github.com/kozaktomas/face-attendance/internal/raster"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/samples"
	"github.com/kozaktomas/face-attendance/internal/session"
)

var (
	asha = identity.Identity{Label: 1, Name: "Asha"}
	bo   = identity.Identity{Label: 2, Name: "Bo"}
)

// testStore creates an empty sample store in a temp dir.
func testStore(t *testing.T) *samples.Store {
	t.Helper()
	return samples.NewStore(filepath.Join(t.TempDir(), "dataset"), raster.Square(200))
}

// addSamples registers id and writes n flat rasters of increasing shade.
func addSamples(t *testing.T, store *samples.Store, id identity.Identity, n int) {
	t.Helper()
	if err := store.Register(id); err != nil {
		t.Fatalf("Register(%v) error = %v", id, err)
	}
	for i := range n {
		g := image.NewGray(image.Rect(0, 0, 200, 200))
		for p := range g.Pix {
			g.Pix[p] = uint8(40*id.Label + i)
		}
		if _, err := store.Add(id, g); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
}

// testManager returns a job manager over store whose camera yields n
// frames with one face each and whose model predicts (label, score).
func testManager(t *testing.T, store *samples.Store, label int, score float64, n int) *session.Manager {
	t.Helper()
	modelPath := filepath.Join(t.TempDir(), "trainer", "model.json")
	if err := recognition.SaveFile(&mock.MockBackend{Label: label, Score: score}, modelPath); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}
	return session.NewManager(session.Env{
		OpenCamera: func() (camera.Camera, error) { return mock.NewMockCamera(n, 320, 240), nil },
		Detector:   &mock.MockDetector{Regions: []image.Rectangle{image.Rect(10, 10, 110, 110)}},
		Samples:    store,
		Ledger:     mock.NewMockLedger(),
		NewBackend: func() (recognition.Backend, error) { return &mock.MockBackend{}, nil },
		ModelPath:  modelPath,
		Threshold:  70,
		Retries:    3,
	})
}

// faceImage is a uniform test photo.
func faceImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 120, 100, 90, 255
	}
	return img
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
