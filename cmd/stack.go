package cmd

import (
	"fmt"
	"math"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/raster"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/samples"
	"github.com/kozaktomas/face-attendance/internal/session"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// addCameraFlags registers flags overriding the camera configuration.
func addCameraFlags(cmd *cobra.Command) {
	cmd.Flags().String("camera", "", "Camera driver (webcam, replay, opencv); defaults to CAMERA_DRIVER")
	cmd.Flags().String("device", "", "Camera device path or replay directory; defaults to CAMERA_DEVICE")
}

// addThresholdFlag registers the acceptance threshold override.
func addThresholdFlag(cmd *cobra.Command) {
	cmd.Flags().Float64("threshold", 0, "Maximum accepted match distance; defaults to RECOGNITION_THRESHOLD")
}

// loadConfig loads the environment configuration and applies the flags
// that were set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()
	if f := cmd.Flags().Lookup("camera"); f != nil && f.Changed {
		cfg.Camera.Driver = mustGetString(cmd, "camera")
	}
	if f := cmd.Flags().Lookup("device"); f != nil && f.Changed {
		cfg.Camera.Device = mustGetString(cmd, "device")
	}
	if f := cmd.Flags().Lookup("threshold"); f != nil && f.Changed {
		threshold := mustGetFloat64(cmd, "threshold")
		if !(threshold > 0) || math.IsInf(threshold, 0) {
			return nil, fmt.Errorf("--threshold must be a positive number, got %v", threshold)
		}
		cfg.Recognition.Threshold = threshold
	}
	return cfg, nil
}

func openSamples(cfg *config.Config) *samples.Store {
	return samples.NewStore(cfg.Storage.SamplesDir, raster.Square(cfg.Recognition.RasterSize))
}

func openDetector(cfg *config.Config) (detector.Detector, error) {
	det, err := detector.Open(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("opening detector: %w", err)
	}
	return det, nil
}

func openLedger(cfg *config.Config) (ledger.Ledger, error) {
	l, err := ledger.Open(cfg.Ledger, cfg.Storage.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s ledger: %w", cfg.Ledger.Driver, err)
	}
	return l, nil
}

func backendFactory(cfg *config.Config) func() (recognition.Backend, error) {
	return func() (recognition.Backend, error) {
		return recognition.NewBackend(cfg.Recognition)
	}
}

// sessionEnv wires the configured camera, model and stores into a job
// environment.
func sessionEnv(cfg *config.Config, store *samples.Store, det detector.Detector, l ledger.Store) session.Env {
	return session.Env{
		OpenCamera: func() (camera.Camera, error) { return camera.Open(cfg.Camera) },
		Detector:   det,
		Samples:    store,
		Ledger:     l,
		NewBackend: backendFactory(cfg),
		ModelPath:  cfg.Storage.ModelPath,
		Threshold:  cfg.Recognition.Threshold,
		Retries:    cfg.Camera.Retries,
		RetryDelay: cfg.Camera.RetryDelay,
	}
}

func newProgressBar(total int, description, unit string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}
