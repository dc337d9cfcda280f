//go:build opencv

package opencv

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/raster"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// LBPH wraps the OpenCV contrib LBPH face recognizer. Its confidence is a
// chi-square distance, lower is better.
type LBPH struct {
	mu         sync.Mutex
	size       image.Point
	recognizer *contrib.LBPHFaceRecognizer
	trained    bool
}

// NewLBPH creates an untrained recognizer for rasters of size.
func NewLBPH(size image.Point) *LBPH {
	return &LBPH{size: size, recognizer: contrib.NewLBPHFaceRecognizer()}
}

func (l *LBPH) Train(rasters []*image.Gray, labels []int) error {
	if len(rasters) == 0 {
		return recognition.ErrNoSamples
	}
	if len(rasters) != len(labels) {
		return fmt.Errorf("%d rasters and %d labels", len(rasters), len(labels))
	}

	mats := make([]gocv.Mat, 0, len(rasters))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for _, r := range rasters {
		m, err := gocv.ImageGrayToMatGray(raster.Fit(r, l.size))
		if err != nil {
			return fmt.Errorf("converting raster: %w", err)
		}
		mats = append(mats, m)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.recognizer.Train(mats, labels)
	l.trained = true
	return nil
}

func (l *LBPH) Predict(face *image.Gray) (int, float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.trained {
		return 0, 0, recognition.ErrNotTrained
	}

	m, err := gocv.ImageGrayToMatGray(raster.Fit(face, l.size))
	if err != nil {
		return 0, 0, fmt.Errorf("converting raster: %w", err)
	}
	defer m.Close()

	res := l.recognizer.PredictExtendedResponse(m)
	return int(res.Label), float64(res.Confidence), nil
}

// Save streams the model in OpenCV's YAML format. The contrib API only
// writes to files, so the model goes through a temporary file.
func (l *LBPH) Save(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.trained {
		return recognition.ErrNotTrained
	}

	path, cleanup, err := tempModelPath()
	if err != nil {
		return err
	}
	defer cleanup()

	l.recognizer.SaveFile(path)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading saved model: %w", err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (l *LBPH) Load(r io.Reader) error {
	path, cleanup, err := tempModelPath()
	if err != nil {
		return err
	}
	defer cleanup()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("buffering model: %w", err)
	}
	if n == 0 {
		return errors.New("empty opencv model")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.recognizer.LoadFile(path)
	l.trained = true
	return nil
}

// tempModelPath returns a fresh path with the .yml extension OpenCV uses to
// pick its serializer.
func tempModelPath() (string, func(), error) {
	dir, err := os.MkdirTemp("", "lbph-")
	if err != nil {
		return "", nil, err
	}
	return filepath.Join(dir, "model.yml"), func() { os.RemoveAll(dir) }, nil
}
