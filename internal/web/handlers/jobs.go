package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/session"
	log "github.com/sirupsen/logrus"
)

// JobsHandler starts and controls recognition sessions and collection jobs.
type JobsHandler struct {
	jobs *session.Manager
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobs *session.Manager) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

type startSessionRequest struct {
	MaxFrames int      `json:"max_frames"`
	Threshold *float64 `json:"threshold"`
}

func validThreshold(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// StartSession starts a recognition session. Model and camera failures
// are reported synchronously.
func (h *JobsHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.MaxFrames < 0 {
		respondError(w, http.StatusBadRequest, "max_frames must not be negative")
		return
	}
	if req.Threshold != nil && !validThreshold(*req.Threshold) {
		respondError(w, http.StatusBadRequest, "threshold must be a positive number")
		return
	}

	s, err := h.jobs.StartSessionWith(func(env *session.Env) {
		if req.MaxFrames > 0 {
			env.MaxFrames = req.MaxFrames
		}
		if req.Threshold != nil {
			env.Threshold = *req.Threshold
		}
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}

	log.WithField("session", s.ID()).Info("recognition session started")
	respondJSON(w, http.StatusCreated, s.Status())
}

// List returns every known job.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobs.List())
}

// Status returns one job.
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.Get(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Status())
}

// Stop stops a job and returns its final status. The job stays listed.
func (h *JobsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	st, err := h.jobs.Stop(chi.URLParam(r, "jobId"))
	if errors.Is(err, session.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	// Any other error is the reason the job stopped, reported in the status.
	respondJSON(w, http.StatusOK, st)
}

// Events streams job events as server-sent events.
func (h *JobsHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.jobs)
}
