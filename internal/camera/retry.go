package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	log "github.com/sirupsen/logrus"
)

// Reader reads frames with per-frame retries. A single failed read is not
// fatal; retries consecutive failures are.
type Reader struct {
	cam     Camera
	retries int
	delay   time.Duration
}

// NewReader wraps cam. retries below one is treated as one.
func NewReader(cam Camera, retries int, delay time.Duration) *Reader {
	if retries < 1 {
		retries = 1
	}
	return &Reader{cam: cam, retries: retries, delay: delay}
}

// Next returns the next frame. It returns ctx.Err() when cancelled,
// ErrEndOfStream when a finite source is exhausted, and an ErrCamera error
// once the camera has failed retries times in a row.
func (r *Reader) Next(ctx context.Context) (image.Image, error) {
	var lastErr error
	for failures := 0; failures < r.retries; failures++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := r.cam.ReadFrame(ctx)
		if err == nil {
			return frame, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrEndOfStream) {
			return nil, err
		}

		lastErr = err
		log.WithError(err).WithField("attempt", failures+1).Debug("frame read failed")

		if r.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.delay):
			}
		}
	}

	if !errors.Is(lastErr, ErrCamera) {
		lastErr = fmt.Errorf("%w: %v", ErrCamera, lastErr)
	}
	return nil, fmt.Errorf("giving up after %d consecutive failures: %w", r.retries, lastErr)
}
