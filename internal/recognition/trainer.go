package recognition

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kozaktomas/face-attendance/internal/samples"
	log "github.com/sirupsen/logrus"
)

// TrainReport summarizes a training run.
type TrainReport struct {
	Samples    int           `json:"samples"`
	Identities int           `json:"identities"`
	Skipped    []string      `json:"skipped"`
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration_ns"`
}

// Trainer fits a fresh backend over the whole sample store and publishes
// the model file.
type Trainer struct {
	backend   Backend
	modelPath string

	// Progress, when set, is called after each loaded sample.
	Progress func(loaded int)
}

// NewTrainer creates a trainer writing the model of backend to modelPath.
func NewTrainer(backend Backend, modelPath string) *Trainer {
	return &Trainer{backend: backend, modelPath: modelPath}
}

// Train loads every sample, fits the backend and replaces the model file.
// When the store has no usable sample it returns ErrNoSamples and leaves
// any existing model untouched.
func (t *Trainer) Train(ctx context.Context, store *samples.Store) (*TrainReport, error) {
	start := time.Now()

	var (
		rasters []*image.Gray
		labels  []int
		seen    = make(map[int]bool)
	)
	skipped, err := store.Walk(func(s samples.Sample) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rasters = append(rasters, s.Raster)
		labels = append(labels, s.Identity.Label)
		seen[s.Identity.Label] = true
		if t.Progress != nil {
			t.Progress(len(rasters))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}

	report := &TrainReport{
		Samples:    len(rasters),
		Identities: len(seen),
		Skipped:    make([]string, 0, len(skipped)),
		Path:       t.modelPath,
	}
	for _, s := range skipped {
		log.WithFields(log.Fields{"path": s.Path, "reason": s.Reason}).Warn("skipping sample entry")
		report.Skipped = append(report.Skipped, s.Path+": "+s.Reason)
	}

	if len(rasters) == 0 {
		return report, fmt.Errorf("%w in %s", ErrNoSamples, store.Root())
	}

	if err := t.backend.Train(rasters, labels); err != nil {
		return report, fmt.Errorf("training backend: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if err := SaveFile(t.backend, t.modelPath); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	log.WithFields(log.Fields{
		"samples":    report.Samples,
		"identities": report.Identities,
		"skipped":    len(report.Skipped),
		"path":       report.Path,
		"duration":   report.Duration.Round(time.Millisecond),
	}).Info("model trained")
	return report, nil
}
