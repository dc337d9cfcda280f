package recognition

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/kozaktomas/face-attendance/internal/samples"
	"gonum.org/v1/gonum/stat"
)

// ScoreStats describes one score distribution.
type ScoreStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P05    float64 `json:"p05"`
	P95    float64 `json:"p95"`
}

// CalibrationReport compares genuine and impostor scores on held-out
// samples and suggests an acceptance threshold.
type CalibrationReport struct {
	Genuine   ScoreStats `json:"genuine"`
	Impostor  ScoreStats `json:"impostor"`
	Threshold float64    `json:"threshold"`
	Suggested float64    `json:"suggested"`
	// Share of genuine probes accepted and impostor probes rejected at Threshold.
	TrueAcceptRate float64 `json:"true_accept_rate"`
	TrueRejectRate float64 `json:"true_reject_rate"`
}

type labeled struct {
	raster *image.Gray
	label  int
}

// Calibrate splits every identity's samples into even (train) and odd
// (probe) halves. Genuine scores come from probing a model trained on all
// train halves; impostor scores come from probing, for each identity, a
// model trained without it. progress receives (done, total) model fits.
func Calibrate(ctx context.Context, newBackend func() (Backend, error), store *samples.Store,
	threshold float64, progress func(done, total int)) (*CalibrationReport, error) {
	byLabel := make(map[int][]*image.Gray)
	if _, err := store.Walk(func(s samples.Sample) error {
		byLabel[s.Identity.Label] = append(byLabel[s.Identity.Label], s.Raster)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}

	var train, probe []labeled
	labels := make([]int, 0, len(byLabel))
	for label, rasters := range byLabel {
		if len(rasters) < 2 {
			continue
		}
		labels = append(labels, label)
		for i, r := range rasters {
			if i%2 == 0 {
				train = append(train, labeled{r, label})
			} else {
				probe = append(probe, labeled{r, label})
			}
		}
	}
	sort.Ints(labels)
	if len(labels) < 2 {
		return nil, fmt.Errorf("%w: calibration needs two identities with at least two samples each", ErrNoSamples)
	}

	total := len(labels) + 1
	done := 0
	step := func() {
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	genuine, err := probeScores(ctx, newBackend, train, probe, func(p labeled, label int) bool {
		return label == p.label
	})
	if err != nil {
		return nil, err
	}
	step()

	var impostor []float64
	for _, excluded := range labels {
		var subset, probes []labeled
		for _, s := range train {
			if s.label != excluded {
				subset = append(subset, s)
			}
		}
		for _, p := range probe {
			if p.label == excluded {
				probes = append(probes, p)
			}
		}
		scores, err := probeScores(ctx, newBackend, subset, probes, func(labeled, int) bool { return true })
		if err != nil {
			return nil, err
		}
		impostor = append(impostor, scores...)
		step()
	}

	report := &CalibrationReport{
		Genuine:   describe(genuine),
		Impostor:  describe(impostor),
		Threshold: threshold,
	}
	report.Suggested = suggestThreshold(report.Genuine, report.Impostor)
	report.TrueAcceptRate = fraction(genuine, func(s float64) bool { return s < threshold })
	report.TrueRejectRate = fraction(impostor, func(s float64) bool { return !(s < threshold) })
	return report, nil
}

// probeScores trains a fresh backend on train and returns the score of
// every probe whose prediction satisfies keep.
func probeScores(ctx context.Context, newBackend func() (Backend, error), train, probes []labeled,
	keep func(p labeled, label int) bool) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := newBackend()
	if err != nil {
		return nil, err
	}
	rasters := make([]*image.Gray, len(train))
	labels := make([]int, len(train))
	for i, s := range train {
		rasters[i], labels[i] = s.raster, s.label
	}
	if err := b.Train(rasters, labels); err != nil {
		return nil, fmt.Errorf("training calibration model: %w", err)
	}

	scores := make([]float64, 0, len(probes))
	for _, p := range probes {
		label, score, err := b.Predict(p.raster)
		if err != nil {
			return nil, fmt.Errorf("predicting probe: %w", err)
		}
		if keep(p, label) {
			scores = append(scores, score)
		}
	}
	return scores, nil
}

func describe(scores []float64) ScoreStats {
	if len(scores) == 0 {
		return ScoreStats{}
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return ScoreStats{
		Count:  len(sorted),
		Mean:   mean,
		StdDev: std,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P05:    stat.Quantile(0.05, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
}

// suggestThreshold places the threshold halfway between the 95th
// percentile of genuine scores and the 5th percentile of impostor scores.
// When the distributions overlap it falls back to the midpoint of the means.
func suggestThreshold(genuine, impostor ScoreStats) float64 {
	if genuine.Count == 0 || impostor.Count == 0 {
		return 0
	}
	if genuine.P95 < impostor.P05 {
		return (genuine.P95 + impostor.P05) / 2
	}
	return (genuine.Mean + impostor.Mean) / 2
}

func fraction(scores []float64, pred func(float64) bool) float64 {
	if len(scores) == 0 {
		return 0
	}
	n := 0
	for _, s := range scores {
		if pred(s) {
			n++
		}
	}
	return float64(n) / float64(len(scores))
}
