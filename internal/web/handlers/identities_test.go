package handlers

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/mock"
	"github.com/kozaktomas/face-attendance/internal/session"
)

func TestIdentitiesHandler_List(t *testing.T) {
	store := testStore(t)
	addSamples(t, store, asha, 3)
	addSamples(t, store, bo, 1)
	if err := os.MkdirAll(filepath.Join(store.Root(), "notes"), 0o755); err != nil {
		t.Fatal(err)
	}
	h := NewIdentitiesHandler(store, &mock.MockDetector{}, testManager(t, store, 1, 40, 1))

	recorder := httptest.NewRecorder()
	h.List(recorder, httptest.NewRequest("GET", "/api/v1/identities", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp ListResponse
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Identities) != 2 {
		t.Fatalf("got %d identities, want 2", len(resp.Identities))
	}
	if resp.Identities[0].Name != "Asha" || resp.Identities[0].Samples != 3 {
		t.Errorf("identities[0] = %+v", resp.Identities[0])
	}
	if resp.Identities[1].Name != "Bo" || resp.Identities[1].Samples != 1 {
		t.Errorf("identities[1] = %+v", resp.Identities[1])
	}
	if len(resp.Skipped) != 1 || !strings.HasSuffix(resp.Skipped[0].Path, "notes") {
		t.Errorf("skipped = %+v", resp.Skipped)
	}
}

func TestIdentitiesHandler_List_Empty(t *testing.T) {
	store := testStore(t)
	h := NewIdentitiesHandler(store, &mock.MockDetector{}, testManager(t, store, 1, 40, 1))

	recorder := httptest.NewRecorder()
	h.List(recorder, httptest.NewRequest("GET", "/api/v1/identities", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	if !strings.Contains(recorder.Body.String(), `"identities":[]`) {
		t.Errorf("body = %s, want an empty identities array", recorder.Body.String())
	}
}

func TestIdentitiesHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantLabel  int
		wantJob    bool
	}{
		{"explicit label without collection", `{"label": 5, "name": "Carol", "collect": false}`, http.StatusCreated, 5, false},
		{"next label", `{"name": "Carol", "collect": false}`, http.StatusCreated, 3, false},
		{"with collection", `{"label": 4, "name": "Dan", "count": 2}`, http.StatusCreated, 4, true},
		{"same identity again", `{"label": 1, "name": "Asha", "collect": false}`, http.StatusCreated, 1, false},
		{"label taken", `{"label": 1, "name": "Carol", "collect": false}`, http.StatusConflict, 0, false},
		{"empty name", `{"label": 6, "name": " ", "collect": false}`, http.StatusBadRequest, 0, false},
		{"negative label", `{"label": -1, "name": "Eve", "collect": false}`, http.StatusBadRequest, 0, false},
		{"invalid json", `{"name":`, http.StatusBadRequest, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := testStore(t)
			addSamples(t, store, asha, 1)
			addSamples(t, store, bo, 1)
			jobs := testManager(t, store, 1, 40, 5)
			h := NewIdentitiesHandler(store, &mock.MockDetector{}, jobs)

			recorder := httptest.NewRecorder()
			h.Create(recorder, httptest.NewRequest("POST", "/api/v1/identities", strings.NewReader(tc.body)))

			assertStatusCode(t, recorder, tc.wantStatus)
			if tc.wantStatus != http.StatusCreated {
				return
			}
			var resp CreateResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.Identity.Label != tc.wantLabel {
				t.Errorf("label = %d, want %d", resp.Identity.Label, tc.wantLabel)
			}
			if (resp.Job != nil) != tc.wantJob {
				t.Fatalf("job = %+v, want job %v", resp.Job, tc.wantJob)
			}
			if resp.Job == nil {
				return
			}
			if resp.Job.Kind != "collection" {
				t.Errorf("job kind = %s, want collection", resp.Job.Kind)
			}
			job := jobs.Get(resp.Job.ID)
			if job == nil {
				t.Fatal("collection job not registered with the manager")
			}
			if err := job.Wait(); err != nil {
				t.Fatalf("collection error = %v", err)
			}
			if n, _ := store.Count(resp.Identity); n != 0 {
				// The detector finds nothing, so no sample is written.
				t.Errorf("collected %d samples, want 0", n)
			}
		})
	}
}

// startLoopingSession starts a session that runs until the test ends.
func startLoopingSession(t *testing.T, jobs *session.Manager) {
	t.Helper()
	_, err := jobs.StartSessionWith(func(e *session.Env) {
		e.OpenCamera = func() (camera.Camera, error) {
			return &mock.MockCamera{Frames: []image.Image{faceImage(320, 240)}, Loop: true}, nil
		}
	})
	if err != nil {
		t.Fatalf("StartSessionWith() error = %v", err)
	}
	t.Cleanup(jobs.StopAll)
}

func TestIdentitiesHandler_Create_Busy(t *testing.T) {
	store := testStore(t)
	addSamples(t, store, asha, 1)
	jobs := testManager(t, store, 1, 40, 0)
	startLoopingSession(t, jobs)
	h := NewIdentitiesHandler(store, &mock.MockDetector{}, jobs)

	recorder := httptest.NewRecorder()
	h.Create(recorder, httptest.NewRequest("POST", "/api/v1/identities", strings.NewReader(`{"name": "Carol"}`)))

	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, session.ErrBusy.Error())
}

func TestIdentitiesHandler_Delete(t *testing.T) {
	store := testStore(t)
	addSamples(t, store, asha, 2)
	addSamples(t, store, bo, 1)
	h := NewIdentitiesHandler(store, &mock.MockDetector{}, testManager(t, store, 1, 40, 1))

	tests := []struct {
		name       string
		label      string
		wantStatus int
	}{
		{"existing", "1", http.StatusOK},
		{"already deleted", "1", http.StatusNotFound},
		{"unknown", "9", http.StatusNotFound},
		{"not a number", "asha", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			req := httptest.NewRequest("DELETE", "/api/v1/identities/"+tc.label, nil)
			h.Delete(recorder, requestWithChiParams(req, map[string]string{"label": tc.label}))
			assertStatusCode(t, recorder, tc.wantStatus)
		})
	}

	ids, _, err := store.Identities()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != bo {
		t.Errorf("identities after delete = %v, want [Bo]", ids)
	}
}

func uploadRequest(t *testing.T, label string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/identities/"+label+"/samples", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return requestWithChiParams(req, map[string]string{"label": label})
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIdentitiesHandler_UploadSamples(t *testing.T) {
	store := testStore(t)
	addSamples(t, store, asha, 1)
	det := &mock.MockDetector{Regions: []image.Rectangle{
		image.Rect(0, 0, 40, 40),
		image.Rect(50, 50, 250, 250),
	}}
	h := NewIdentitiesHandler(store, det, testManager(t, store, 1, 40, 1))

	recorder := httptest.NewRecorder()
	h.UploadSamples(recorder, uploadRequest(t, "1", map[string][]byte{
		"a.png":   pngBytes(t, faceImage(320, 320)),
		"b.png":   pngBytes(t, faceImage(300, 300)),
		"bad.txt": []byte("not an image"),
	}))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp UploadResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Written != 2 {
		t.Errorf("written = %d, want 2", resp.Written)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0].File != "bad.txt" {
		t.Errorf("skipped = %+v", resp.Skipped)
	}
	if n, _ := store.Count(asha); n != 3 {
		t.Errorf("store has %d samples, want 3", n)
	}
}

func TestIdentitiesHandler_UploadSamples_Rejects(t *testing.T) {
	store := testStore(t)
	addSamples(t, store, asha, 1)

	t.Run("no face", func(t *testing.T) {
		h := NewIdentitiesHandler(store, &mock.MockDetector{}, testManager(t, store, 1, 40, 1))
		recorder := httptest.NewRecorder()
		h.UploadSamples(recorder, uploadRequest(t, "1", map[string][]byte{"a.png": pngBytes(t, faceImage(64, 64))}))

		assertStatusCode(t, recorder, http.StatusOK)
		var resp UploadResponse
		parseJSONResponse(t, recorder, &resp)
		if resp.Written != 0 || len(resp.Skipped) != 1 || resp.Skipped[0].Reason != "no face found" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("detector error", func(t *testing.T) {
		det := &mock.MockDetector{DetectError: errors.New("cascade missing")}
		h := NewIdentitiesHandler(store, det, testManager(t, store, 1, 40, 1))
		recorder := httptest.NewRecorder()
		h.UploadSamples(recorder, uploadRequest(t, "1", map[string][]byte{"a.png": pngBytes(t, faceImage(64, 64))}))

		var resp UploadResponse
		parseJSONResponse(t, recorder, &resp)
		if resp.Written != 0 || len(resp.Skipped) != 1 {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("unknown identity", func(t *testing.T) {
		h := NewIdentitiesHandler(store, &mock.MockDetector{}, testManager(t, store, 1, 40, 1))
		recorder := httptest.NewRecorder()
		h.UploadSamples(recorder, uploadRequest(t, "7", map[string][]byte{"a.png": pngBytes(t, faceImage(64, 64))}))
		assertStatusCode(t, recorder, http.StatusNotFound)
	})

	t.Run("no files", func(t *testing.T) {
		h := NewIdentitiesHandler(store, &mock.MockDetector{}, testManager(t, store, 1, 40, 1))
		recorder := httptest.NewRecorder()
		h.UploadSamples(recorder, uploadRequest(t, "1", nil))
		assertStatusCode(t, recorder, http.StatusBadRequest)
	})
}

func TestLargest(t *testing.T) {
	got := largest([]image.Rectangle{
		image.Rect(0, 0, 10, 10),
		image.Rect(0, 0, 30, 20),
		image.Rect(5, 5, 25, 25),
	})
	if want := image.Rect(0, 0, 30, 20); got != want {
		t.Errorf("largest() = %v, want %v", got, want)
	}
}
