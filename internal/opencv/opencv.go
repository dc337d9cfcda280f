//go:build opencv

// Package opencv provides gocv implementations of the camera, detector and
// recognition backends. It is compiled only with the opencv build tag and
// registers the "opencv" driver in each registry on import.
package opencv

import (
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/raster"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

const driverName = "opencv"

func init() {
	camera.Register(driverName, func(cfg config.CameraConfig) (camera.Camera, error) {
		return OpenCamera(cfg)
	})
	detector.Register(driverName, func(cfg config.DetectorConfig) (detector.Detector, error) {
		return NewHaar(cfg.HaarCascade)
	})
	recognition.RegisterBackend(driverName, func(cfg config.RecognitionConfig) (recognition.Backend, error) {
		return NewLBPH(raster.Square(cfg.RasterSize)), nil
	})
}
