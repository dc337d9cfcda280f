// Package lbph is a pure-Go local binary pattern histogram face recognizer.
// Scores are chi-square distances between spatial LBP histograms, so a
// lower score is a closer match and identical rasters score 0.
package lbph

import (
	"encoding/gob"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/raster"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

const modelVersion = 1

func init() {
	recognition.RegisterBackend("lbph", func(cfg config.RecognitionConfig) (recognition.Backend, error) {
		return New(raster.Square(cfg.RasterSize), cfg.HNSWMinSamples), nil
	})
}

// modelFile is the gob-encoded model artifact.
type modelFile struct {
	Version    int
	Width      int
	Height     int
	GridX      int
	GridY      int
	Labels     []int
	Histograms [][]float32
}

// Recognizer implements recognition.Backend.
type Recognizer struct {
	size         image.Point
	minGraphSize int

	mu  sync.RWMutex
	idx *index
}

// New creates an untrained recognizer for rasters of size. Training sets
// of at least minGraphSize samples are searched through an HNSW graph;
// zero disables the graph.
func New(size image.Point, minGraphSize int) *Recognizer {
	return &Recognizer{size: size, minGraphSize: minGraphSize}
}

// Train replaces the model with histograms of rasters.
func (r *Recognizer) Train(rasters []*image.Gray, labels []int) error {
	if len(rasters) != len(labels) {
		return fmt.Errorf("got %d rasters and %d labels", len(rasters), len(labels))
	}
	if len(rasters) == 0 {
		return recognition.ErrNoSamples
	}

	histograms := make([][]float32, len(rasters))
	for i, g := range rasters {
		histograms[i] = Histogram(raster.Fit(g, r.size))
	}
	owned := make([]int, len(labels))
	copy(owned, labels)

	idx := newIndex(histograms, owned, r.minGraphSize)
	r.mu.Lock()
	r.idx = idx
	r.mu.Unlock()
	return nil
}

// Predict returns the label of the closest training sample and its distance.
func (r *Recognizer) Predict(face *image.Gray) (int, float64, error) {
	r.mu.RLock()
	idx := r.idx
	r.mu.RUnlock()
	if idx == nil || idx.len() == 0 {
		return 0, 0, recognition.ErrNotTrained
	}

	label, dist := idx.nearest(Histogram(raster.Fit(face, r.size)))
	return label, float64(dist), nil
}

// Samples returns the number of training histograms.
func (r *Recognizer) Samples() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.idx == nil {
		return 0
	}
	return r.idx.len()
}

func (r *Recognizer) Save(w io.Writer) error {
	r.mu.RLock()
	idx := r.idx
	r.mu.RUnlock()
	if idx == nil {
		return recognition.ErrNotTrained
	}

	return gob.NewEncoder(w).Encode(modelFile{
		Version:    modelVersion,
		Width:      r.size.X,
		Height:     r.size.Y,
		GridX:      GridX,
		GridY:      GridY,
		Labels:     idx.labels,
		Histograms: idx.histograms,
	})
}

// Load replaces the model with one written by Save. The raster size of
// the file wins over the size given to New.
func (r *Recognizer) Load(rd io.Reader) error {
	var m modelFile
	if err := gob.NewDecoder(rd).Decode(&m); err != nil {
		return fmt.Errorf("decoding lbph model: %w", err)
	}
	if err := m.validate(); err != nil {
		return err
	}

	idx := newIndex(m.Histograms, m.Labels, r.minGraphSize)
	r.mu.Lock()
	r.size = image.Pt(m.Width, m.Height)
	r.idx = idx
	r.mu.Unlock()
	return nil
}

func (m *modelFile) validate() error {
	switch {
	case m.Version != modelVersion:
		return fmt.Errorf("unsupported lbph model version %d", m.Version)
	case m.GridX != GridX || m.GridY != GridY:
		return fmt.Errorf("lbph model grid %dx%d, want %dx%d", m.GridX, m.GridY, GridX, GridY)
	case m.Width <= 0 || m.Height <= 0:
		return errors.New("lbph model has no raster size")
	case len(m.Labels) == 0 || len(m.Labels) != len(m.Histograms):
		return fmt.Errorf("lbph model has %d labels and %d histograms", len(m.Labels), len(m.Histograms))
	}
	want := GridX * GridY * bins
	for i, h := range m.Histograms {
		if len(h) != want {
			return fmt.Errorf("lbph histogram %d has %d bins, want %d", i, len(h), want)
		}
	}
	return nil
}
