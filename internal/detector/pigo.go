package detector

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/raster"
)

// Pigo detects faces with the pigo pixel-intensity cascade. It needs no
// native libraries.
type Pigo struct {
	classifier *pigo.Pigo
	params     config.PigoConfig
}

// NewPigo loads the cascade file named in cfg.
func NewPigo(cfg config.PigoConfig) (*Pigo, error) {
	cascade, err := os.ReadFile(cfg.Cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to read pigo cascade file: %w", err)
	}
	return NewPigoFromCascade(cascade, cfg)
}

// NewPigoFromCascade unpacks an in-memory cascade.
func NewPigoFromCascade(cascade []byte, cfg config.PigoConfig) (*Pigo, error) {
	p := pigo.NewPigo()
	classifier, err := p.Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack pigo cascade: %w", err)
	}
	return &Pigo{classifier: classifier, params: cfg}, nil
}

func (d *Pigo) Detect(img image.Image) (faces []image.Rectangle, err error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrDetector)
	}

	// The cascade indexes the pixel buffer directly; a malformed buffer
	// panics inside pigo instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			faces, err = nil, fmt.Errorf("%w: pigo: %v", ErrDetector, r)
		}
	}()

	gray := raster.ToGray(img)
	cParams := pigo.CascadeParams{
		MinSize:     d.params.MinSize,
		MaxSize:     d.params.MaxSize,
		ShiftFactor: d.params.ShiftFactor,
		ScaleFactor: d.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: gray.Pix,
			Rows:   bounds.Dy(),
			Cols:   bounds.Dx(),
			Dim:    gray.Stride,
		},
	}

	dets := d.classifier.RunCascade(cParams, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.params.IoUThreshold)

	faces = make([]image.Rectangle, 0, len(dets))
	for _, det := range dets {
		if det.Q <= d.params.QualityThreshold {
			continue
		}
		x := bounds.Min.X + det.Col - det.Scale/2
		y := bounds.Min.Y + det.Row - det.Scale/2
		faces = append(faces, image.Rect(x, y, x+det.Scale, y+det.Scale))
	}
	return Clip(faces, bounds, 1), nil
}
