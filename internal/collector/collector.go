// Package collector enrolls identities by capturing face samples from a
// camera into the sample store.
package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/raster"
	"github.com/kozaktomas/face-attendance/internal/samples"
	log "github.com/sirupsen/logrus"
)

// Collector captures samples for one identity at a time.
type Collector struct {
	frames   *camera.Reader
	detector detector.Detector
	store    *samples.Store

	// Progress, when set, is called after every written sample.
	Progress func(written, target int)
}

// New creates a collector reading frames through r.
func New(r *camera.Reader, d detector.Detector, store *samples.Store) *Collector {
	return &Collector{frames: r, detector: d, store: store}
}

// Collect writes up to target samples for id and returns how many were
// written. Every face found in a frame becomes a sample, so one frame may
// contribute several. A non-positive target means the default sample
// count. On cancellation the partial count is returned with ctx.Err().
func (c *Collector) Collect(ctx context.Context, id identity.Identity, target int) (int, error) {
	if target <= 0 {
		target = constants.DefaultSampleCount
	}
	if err := c.store.Register(id); err != nil {
		return 0, err
	}

	logger := log.WithFields(log.Fields{"label": id.Label, "name": id.Name})
	size := c.store.Size()
	written := 0
	frames := 0

	for written < target {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		frame, err := c.frames.Next(ctx)
		if err != nil {
			if errors.Is(err, camera.ErrEndOfStream) {
				logger.WithField("written", written).Info("frame source exhausted")
				return written, nil
			}
			return written, err
		}
		frames++

		regions, err := c.detector.Detect(frame)
		if err != nil {
			logger.WithError(err).WithField("frame", frames).Warn("skipping frame")
			continue
		}

		for _, region := range regions {
			if written >= target {
				break
			}
			face, err := raster.Normalize(frame, region, size)
			if err != nil {
				logger.WithError(err).WithField("region", region.String()).Debug("skipping region")
				continue
			}
			path, err := c.store.Add(id, face)
			if err != nil {
				return written, fmt.Errorf("writing sample %d: %w", written+1, err)
			}
			written++
			logger.WithField("path", path).Debug("sample written")
			if c.Progress != nil {
				c.Progress(written, target)
			}
		}
	}

	logger.WithFields(log.Fields{"written": written, "frames": frames}).Info("collection finished")
	return written, nil
}
