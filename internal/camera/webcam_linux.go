//go:build linux

package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/blackjack/webcam"
	"github.com/kozaktomas/face-attendance/internal/config"
)

// V4L2 FourCC codes, little endian.
const (
	pixFmtYUYV  webcam.PixelFormat = 0x56595559
	pixFmtGrey  webcam.PixelFormat = 0x59455247
	pixFmtMJPEG webcam.PixelFormat = 0x47504A4D
)

// formatPreference lists the formats we can decode, best first.
var formatPreference = []webcam.PixelFormat{pixFmtYUYV, pixFmtGrey, pixFmtMJPEG}

// Webcam reads frames from a V4L2 device.
type Webcam struct {
	cam     *webcam.Webcam
	format  webcam.PixelFormat
	width   int
	height  int
	timeout uint32 // seconds
}

// OpenWebcam opens and starts streaming from a V4L2 device.
func OpenWebcam(cfg config.CameraConfig) (*Webcam, error) {
	cam, err := webcam.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("can not open device: %w", err)
	}

	supported := cam.GetSupportedFormats()
	var format webcam.PixelFormat
	for _, f := range formatPreference {
		if _, ok := supported[f]; ok {
			format = f
			break
		}
	}
	if format == 0 {
		cam.Close()
		return nil, fmt.Errorf("device %s offers no supported pixel format (%v)", cfg.Device, supported)
	}

	f, w, h, err := cam.SetImageFormat(format, uint32(cfg.Width), uint32(cfg.Height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("setting image format: %w", err)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("can not start streaming: %w", err)
	}

	timeout := uint32(cfg.FrameTimeout / time.Second)
	if timeout == 0 {
		timeout = 1
	}

	return &Webcam{cam: cam, format: f, width: int(w), height: int(h), timeout: timeout}, nil
}

func (c *Webcam) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := c.cam.WaitForFrame(c.timeout)
	var timeoutErr *webcam.Timeout
	switch {
	case err == nil:
	case errors.As(err, &timeoutErr):
		return nil, fmt.Errorf("%w: frame wait timed out", ErrCamera)
	default:
		return nil, fmt.Errorf("%w: frame wait failed: %v", ErrCamera, err)
	}

	frame, err := c.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: read frame failed: %v", ErrCamera, err)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrCamera)
	}

	img, err := c.decode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCamera, err)
	}
	return img, nil
}

func (c *Webcam) decode(frame []byte) (image.Image, error) {
	rect := image.Rect(0, 0, c.width, c.height)

	switch c.format {
	case pixFmtYUYV:
		if len(frame) < c.width*c.height*2 {
			return nil, fmt.Errorf("short YUYV frame: %d bytes", len(frame))
		}
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio422)
		for y := range c.height {
			row := frame[y*c.width*2 : (y+1)*c.width*2]
			for x := 0; x < c.width; x += 2 {
				i := x * 2
				img.Y[y*img.YStride+x] = row[i]
				img.Y[y*img.YStride+x+1] = row[i+2]
				ci := y*img.CStride + x/2
				img.Cb[ci] = row[i+1]
				img.Cr[ci] = row[i+3]
			}
		}
		return img, nil

	case pixFmtGrey:
		if len(frame) < c.width*c.height {
			return nil, fmt.Errorf("short GREY frame: %d bytes", len(frame))
		}
		img := image.NewGray(rect)
		copy(img.Pix, frame)
		return img, nil

	default:
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, fmt.Errorf("decoding MJPEG frame: %w", err)
		}
		return img, nil
	}
}

func (c *Webcam) Close() error {
	_ = c.cam.StopStreaming()
	if err := c.cam.Close(); err != nil {
		return fmt.Errorf("closing device: %w", err)
	}
	return nil
}

func init() {
	Register("webcam", func(cfg config.CameraConfig) (Camera, error) {
		return OpenWebcam(cfg)
	})
}
