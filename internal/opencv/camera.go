//go:build opencv

package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
	"gocv.io/x/gocv"
)

var errEmptyFrame = errors.New("opencv returned an empty frame")

// Camera reads frames through an OpenCV VideoCapture.
type Camera struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// OpenCamera opens cfg.Device, either a numeric device id or a path or URL.
func OpenCamera(cfg config.CameraConfig) (*Camera, error) {
	device := cfg.Device
	if device == "" {
		device = "0"
	}
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("opening video capture %s: %w", device, err)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	return &Camera{capture: capture, frame: gocv.NewMat()}, nil
}

// ReadFrame grabs the next frame. VideoCapture.Read cannot be interrupted,
// so ctx is only checked before the read.
func (c *Camera) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok := c.capture.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, errEmptyFrame
	}
	img, err := c.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.frame.Close(); err != nil {
		return err
	}
	return c.capture.Close()
}
