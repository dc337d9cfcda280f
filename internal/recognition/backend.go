// Package recognition trains face models from the sample store and
// identifies normalized face rasters against them.
package recognition

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio"
	"github.com/kozaktomas/face-attendance/internal/config"
)

// Backend is a face recognizer. Scores are distances: lower is a better match.
type Backend interface {
	// Train fits the backend over the full sample set, replacing any prior state.
	Train(rasters []*image.Gray, labels []int) error
	// Predict returns the closest label and its distance.
	Predict(face *image.Gray) (label int, score float64, err error)
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// Factory creates an untrained backend.
type Factory func(cfg config.RecognitionConfig) (Backend, error)

var (
	backends   = make(map[string]Factory)
	backendsMu sync.RWMutex
)

// RegisterBackend makes a backend available by name. Backend packages call
// it from init.
func RegisterBackend(name string, factory Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Backends returns the registered backend names.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend creates the backend selected by cfg.Backend.
func NewBackend(cfg config.RecognitionConfig) (Backend, error) {
	backendsMu.RLock()
	factory, ok := backends[cfg.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown recognition backend %q (available: %v)", cfg.Backend, Backends())
	}
	return factory(cfg)
}

// SaveFile writes the model to path atomically. Readers see either the
// previous file or the complete new one.
func SaveFile(b Backend, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating model directory: %w", err)
		}
	}

	t, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("creating temporary model file: %w", err)
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	if err := b.Save(w); err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("publishing model: %w", err)
	}
	return nil
}

// LoadFile reads the model at path into b.
func LoadFile(b Backend, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrModelMissing, path)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	defer f.Close()

	if err := b.Load(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
	}
	return nil
}

// ModelExists reports whether a model file is present at path.
func ModelExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
