package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/raster"
	"github.com/kozaktomas/face-attendance/internal/samples"
	"github.com/kozaktomas/face-attendance/internal/session"
	log "github.com/sirupsen/logrus"
)

// IdentitiesHandler handles enrollment endpoints.
type IdentitiesHandler struct {
	store    *samples.Store
	detector detector.Detector
	jobs     *session.Manager
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(store *samples.Store, d detector.Detector, jobs *session.Manager) *IdentitiesHandler {
	return &IdentitiesHandler{store: store, detector: d, jobs: jobs}
}

// IdentityResponse is one roster entry.
type IdentityResponse struct {
	identity.Identity
	Samples int `json:"samples"`
}

// ListResponse is the roster with the directories that could not be parsed.
type ListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Skipped    []samples.Skipped  `json:"skipped,omitempty"`
}

// List returns the enrolled identities with their sample counts.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	roster, skipped, err := h.store.Roster()
	if err != nil {
		respondErr(w, r, err)
		return
	}

	resp := ListResponse{Identities: []IdentityResponse{}, Skipped: skipped}
	for _, id := range roster.Identities() {
		n, err := h.store.Count(id)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		resp.Identities = append(resp.Identities, IdentityResponse{Identity: id, Samples: n})
	}
	respondJSON(w, http.StatusOK, resp)
}

type createIdentityRequest struct {
	Label   *int   `json:"label"`
	Name    string `json:"name"`
	Count   int    `json:"count"`
	Collect *bool  `json:"collect"`
}

// CreateResponse is the registered identity and its collection job.
type CreateResponse struct {
	Identity identity.Identity `json:"identity"`
	Job      *session.Status   `json:"job,omitempty"`
}

// Create registers an identity and, unless collect is false, starts a
// camera collection job for it. Without a label the next free one is used.
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	label := 0
	if req.Label != nil {
		label = *req.Label
	} else {
		roster, _, err := h.store.Roster()
		if err != nil {
			respondErr(w, r, err)
			return
		}
		label = roster.NextLabel()
	}

	id, err := identity.New(label, req.Name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := h.store.Register(id); err != nil {
		respondErr(w, r, err)
		return
	}
	log.WithFields(log.Fields{"label": id.Label, "name": sanitizeForLog(id.Name)}).Info("identity registered")

	resp := CreateResponse{Identity: id}
	if req.Collect == nil || *req.Collect {
		job, err := h.jobs.StartCollection(id, req.Count)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		st := job.Status()
		resp.Job = &st
	}
	respondJSON(w, http.StatusCreated, resp)
}

// lookup resolves the {label} URL parameter against the roster.
func (h *IdentitiesHandler) lookup(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	label, err := strconv.Atoi(chi.URLParam(r, "label"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid label")
		return identity.Identity{}, false
	}
	roster, _, err := h.store.Roster()
	if err != nil {
		respondErr(w, r, err)
		return identity.Identity{}, false
	}
	id, ok := roster.Lookup(label)
	if !ok {
		respondError(w, http.StatusNotFound, "identity not found")
		return identity.Identity{}, false
	}
	return id, true
}

// Delete removes an identity and its samples. The model keeps the label
// until the next training run.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := h.store.Remove(id); err != nil {
		respondErr(w, r, err)
		return
	}
	log.WithFields(log.Fields{"label": id.Label, "user": editor(r)}).Info("identity deleted")
	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// UploadSkip explains why an uploaded file produced no sample.
type UploadSkip struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// UploadResponse summarizes a sample upload.
type UploadResponse struct {
	Written int          `json:"written"`
	Skipped []UploadSkip `json:"skipped,omitempty"`
}

// UploadSamples enrolls from photos instead of the camera: the largest
// face of every uploaded image becomes a sample.
func (h *IdentitiesHandler) UploadSamples(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	var resp UploadResponse
	for _, fh := range files {
		face, err := h.extractFace(fh)
		if err != nil {
			resp.Skipped = append(resp.Skipped, UploadSkip{File: fh.Filename, Reason: err.Error()})
			continue
		}
		if _, err := h.store.Add(id, face); err != nil {
			respondErr(w, r, err)
			return
		}
		resp.Written++
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *IdentitiesHandler) extractFace(fh *multipart.FileHeader) (*image.Gray, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	img, err := raster.Decode(f)
	if err != nil {
		return nil, err
	}
	regions, err := h.detector.Detect(img)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, errors.New("no face found")
	}
	return raster.Normalize(img, largest(regions), h.store.Size())
}

func largest(regions []image.Rectangle) image.Rectangle {
	best := regions[0]
	for _, r := range regions[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	return best
}
