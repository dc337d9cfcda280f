package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/samples"
	log "github.com/sirupsen/logrus"
)

// RecognitionHandler trains the model and calibrates the threshold.
type RecognitionHandler struct {
	cfg       config.RecognitionConfig
	modelPath string
	store     *samples.Store

	// One fit at a time; both endpoints are CPU bound.
	busy sync.Mutex
}

// NewRecognitionHandler creates a new recognition handler.
func NewRecognitionHandler(cfg config.RecognitionConfig, modelPath string, store *samples.Store) *RecognitionHandler {
	return &RecognitionHandler{cfg: cfg, modelPath: modelPath, store: store}
}

// Train fits a new model over the sample store and publishes it.
func (h *RecognitionHandler) Train(w http.ResponseWriter, r *http.Request) {
	if !h.busy.TryLock() {
		respondError(w, http.StatusConflict, "training or calibration already running")
		return
	}
	defer h.busy.Unlock()

	backend, err := recognition.NewBackend(h.cfg)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	report, err := recognition.NewTrainer(backend, h.modelPath).Train(r.Context(), h.store)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	log.WithFields(log.Fields{
		"samples":    report.Samples,
		"identities": report.Identities,
		"duration":   report.Duration,
	}).Info("model trained")
	respondJSON(w, http.StatusOK, report)
}

type calibrateRequest struct {
	Threshold float64 `json:"threshold"`
}

// Calibrate measures genuine and impostor score distributions on held-out
// samples and suggests a threshold. The live model is not touched.
func (h *RecognitionHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	var req calibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Threshold <= 0 {
		req.Threshold = h.cfg.Threshold
	}

	if !h.busy.TryLock() {
		respondError(w, http.StatusConflict, "training or calibration already running")
		return
	}
	defer h.busy.Unlock()

	report, err := recognition.Calibrate(r.Context(), func() (recognition.Backend, error) {
		return recognition.NewBackend(h.cfg)
	}, h.store, req.Threshold, nil)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Backends lists the registered recognition backends.
func (h *RecognitionHandler) Backends(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"active":    h.cfg.Backend,
		"available": recognition.Backends(),
		"trained":   recognition.ModelExists(h.modelPath),
		"threshold": h.cfg.Threshold,
	})
}
