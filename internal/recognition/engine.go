package recognition

import (
	"fmt"
	"image"
	"math"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/raster"
	log "github.com/sirupsen/logrus"
)

// UnknownLabel is the label of a face that did not pass the threshold.
const UnknownLabel = constants.UnknownLabel

// Result is the outcome of identifying one face region.
type Result struct {
	Region image.Rectangle `json:"region"`
	Label  int             `json:"label"`
	Name   string          `json:"name"`
	Known  bool            `json:"known"`
	Score  float64         `json:"score"`
}

// Similarity is a display value derived from the score, 100 minus the
// distance clamped to [0, 100]. Decisions never use it.
func (r Result) Similarity() float64 {
	return math.Max(0, math.Min(100, 100-r.Score))
}

// Identity returns the matched identity. Valid only when Known is true.
func (r Result) Identity() identity.Identity {
	return identity.Identity{Label: r.Label, Name: r.Name}
}

func unknown(region image.Rectangle, score float64) Result {
	return Result{
		Region: region,
		Label:  UnknownLabel,
		Name:   constants.UnknownName,
		Score:  score,
	}
}

// Engine applies the acceptance policy to backend predictions.
type Engine struct {
	backend   Backend
	roster    *identity.Roster
	threshold float64
	size      image.Point
}

// NewEngine creates an engine over a trained backend. Predictions are
// accepted only when the score is strictly below threshold and the label
// is present in roster.
func NewEngine(backend Backend, roster *identity.Roster, threshold float64, size image.Point) *Engine {
	return &Engine{
		backend:   backend,
		roster:    roster,
		threshold: threshold,
		size:      size,
	}
}

// Threshold returns the acceptance threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Roster returns the label to name projection used for lookups.
func (e *Engine) Roster() *identity.Roster {
	return e.roster
}

// Identify classifies a grayscale face raster. Rasters of the wrong size
// are resized first.
func (e *Engine) Identify(face *image.Gray) (Result, error) {
	return e.identify(image.Rectangle{}, raster.Fit(face, e.size))
}

// IdentifyRegion normalizes region of frame and classifies it.
func (e *Engine) IdentifyRegion(frame image.Image, region image.Rectangle) (Result, error) {
	face, err := raster.Normalize(frame, region, e.size)
	if err != nil {
		return unknown(region, 0), err
	}
	return e.identify(region, face)
}

func (e *Engine) identify(region image.Rectangle, face *image.Gray) (Result, error) {
	label, score, err := e.backend.Predict(face)
	if err != nil {
		return unknown(region, 0), fmt.Errorf("predicting face: %w", err)
	}

	if !(score < e.threshold) {
		return unknown(region, score), nil
	}

	id, ok := e.roster.Lookup(label)
	if !ok {
		log.WithFields(log.Fields{"label": label, "score": score}).
			Warn("model returned a label missing from the roster, treating as unknown")
		return unknown(region, score), nil
	}

	return Result{
		Region: region,
		Label:  id.Label,
		Name:   id.Name,
		Known:  true,
		Score:  score,
	}, nil
}
