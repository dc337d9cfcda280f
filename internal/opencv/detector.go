//go:build opencv

package opencv

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Haar cascade parameters.
const (
	haarScaleFactor  = 1.1
	haarMinNeighbors = 5
	haarMinSize      = 30
)

// Haar detects faces with an OpenCV Haar cascade.
type Haar struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// NewHaar loads the cascade XML at path.
func NewHaar(path string) (*Haar, error) {
	if path == "" {
		return nil, errors.New("HAAR_CASCADE is not set")
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("loading cascade %s", path)
	}
	return &Haar{classifier: classifier}, nil
}

func (h *Haar) Detect(img image.Image) ([]image.Rectangle, error) {
	mat, err := grayMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.classifier.DetectMultiScaleWithParams(mat, haarScaleFactor, haarMinNeighbors, 0,
		image.Pt(haarMinSize, haarMinSize), image.Point{}), nil
}

// Close releases the classifier.
func (h *Haar) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.classifier.Close()
}

// grayMat converts img to a single channel Mat.
func grayMat(img image.Image) (gocv.Mat, error) {
	if g, ok := img.(*image.Gray); ok {
		return gocv.ImageGrayToMatGray(g)
	}
	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("converting image: %w", err)
	}
	defer bgr.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}
