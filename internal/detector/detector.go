// Package detector finds face regions in frames.
package detector

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// ErrDetector marks detector failures on a frame or region. Callers skip
// the frame and carry on.
var ErrDetector = errors.New("detector error")

// Detector returns axis-aligned face regions in image coordinates.
type Detector interface {
	Detect(img image.Image) ([]image.Rectangle, error)
}

// Opener builds a detector from configuration.
type Opener func(cfg config.DetectorConfig) (Detector, error)

var (
	drivers   = make(map[string]Opener)
	driversMu sync.RWMutex
)

// Register makes a detector available by name.
func Register(name string, opener Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = opener
}

// Drivers returns the registered detector names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the detector selected by cfg.Driver.
func Open(cfg config.DetectorConfig) (Detector, error) {
	driversMu.RLock()
	opener, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown detector %q (available: %v)", cfg.Driver, Drivers())
	}
	return opener(cfg)
}

func init() {
	Register("pigo", func(cfg config.DetectorConfig) (Detector, error) {
		return NewPigo(cfg.Pigo)
	})
	Register("remote", func(cfg config.DetectorConfig) (Detector, error) {
		return NewRemote(cfg.URL), nil
	})
}
