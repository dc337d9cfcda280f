// Package camera provides frame sources for enrollment and recognition.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
)

var (
	// ErrCamera marks device unavailable and frame read failures.
	ErrCamera = errors.New("camera error")

	// ErrEndOfStream is returned by finite sources after the last frame.
	ErrEndOfStream = errors.New("end of frame stream")
)

// Camera is a source of frames.
type Camera interface {
	// ReadFrame blocks until the next frame is available, the device times
	// out or ctx is done.
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener opens a camera from configuration.
type Opener func(cfg config.CameraConfig) (Camera, error)

var (
	drivers   = make(map[string]Opener)
	driversMu sync.RWMutex
)

// Register makes a camera driver available by name. Drivers compiled
// behind build tags register themselves from init.
func Register(name string, opener Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = opener
}

// Drivers returns the registered driver names.
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

// Open opens the camera selected by cfg.Driver.
func Open(cfg config.CameraConfig) (Camera, error) {
	driversMu.RLock()
	opener, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown driver %q (available: %v)", ErrCamera, cfg.Driver, Drivers())
	}
	cam, err := opener(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s %s: %v", ErrCamera, cfg.Driver, cfg.Device, err)
	}
	return cam, nil
}

func init() {
	Register("replay", func(cfg config.CameraConfig) (Camera, error) {
		return NewReplay(cfg.Device, false)
	})
}
