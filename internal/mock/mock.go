// Package mock provides in-memory fakes of the camera, detector,
// recognition backend and ledger for testing.
package mock

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/ledger"
)

// MockCamera returns Frames in order, then camera.ErrEndOfStream unless
// Loop is set.
type MockCamera struct {
	mu     sync.Mutex
	Frames []image.Image
	Loop   bool
	next   int
	reads  int
	closed bool

	// Error injection
	ReadError error
}

// NewMockCamera creates a camera that yields n blank frames of size w x h.
func NewMockCamera(n, w, h int) *MockCamera {
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = image.NewGray(image.Rect(0, 0, w, h))
	}
	return &MockCamera{Frames: frames}
}

func (m *MockCamera) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	if m.next >= len(m.Frames) {
		if !m.Loop || len(m.Frames) == 0 {
			return nil, camera.ErrEndOfStream
		}
		m.next = 0
	}
	frame := m.Frames[m.next]
	m.next++
	return frame, nil
}

func (m *MockCamera) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Reads returns the number of ReadFrame calls.
func (m *MockCamera) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Closed reports whether Close was called.
func (m *MockCamera) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockDetector returns the same Regions for every frame.
type MockDetector struct {
	mu      sync.Mutex
	Regions []image.Rectangle
	calls   int

	// Error injection
	DetectError error
}

func (m *MockDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.DetectError != nil {
		return nil, m.DetectError
	}
	out := make([]image.Rectangle, len(m.Regions))
	copy(out, m.Regions)
	return out, nil
}

// Calls returns the number of Detect calls.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockBackend predicts Label with Score, or delegates to PredictFunc.
type MockBackend struct {
	mu          sync.Mutex
	Label       int
	Score       float64
	PredictFunc func(face *image.Gray) (int, float64, error)
	trained     int
	predictions int

	// Error injection
	TrainError   error
	PredictError error
	SaveError    error
	LoadError    error
}

func (m *MockBackend) Train(rasters []*image.Gray, labels []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TrainError != nil {
		return m.TrainError
	}
	m.trained = len(rasters)
	return nil
}

func (m *MockBackend) Predict(face *image.Gray) (int, float64, error) {
	m.mu.Lock()
	m.predictions++
	fn, label, score, err := m.PredictFunc, m.Label, m.Score, m.PredictError
	m.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}
	if fn != nil {
		return fn(face)
	}
	return label, score, nil
}

func (m *MockBackend) Save(w io.Writer) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.NewEncoder(w).Encode(struct {
		Label int     `json:"label"`
		Score float64 `json:"score"`
	}{m.Label, m.Score})
}

func (m *MockBackend) Load(r io.Reader) error {
	if m.LoadError != nil {
		return m.LoadError
	}
	var v struct {
		Label int     `json:"label"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Label, m.Score = v.Label, v.Score
	return nil
}

// Trained returns the sample count of the last Train call.
func (m *MockBackend) Trained() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trained
}

// Predictions returns the number of Predict calls.
func (m *MockBackend) Predictions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions
}

// MockLedger is an in-memory ledger.Store with the same per-day rule.
type MockLedger struct {
	mu      sync.Mutex
	records []ledger.Record
	calls   int

	// Error injection
	MarkError    error
	RecordsError error
}

// NewMockLedger creates an empty ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

func (m *MockLedger) MarkIfAbsent(ctx context.Context, label int, name string, now time.Time) (ledger.MarkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.MarkError != nil {
		return ledger.MarkResult{}, m.MarkError
	}
	now = now.Truncate(time.Second)
	day := now.Format(constants.DayLayout)
	for _, r := range m.records {
		if r.Label == label && r.Day() == day {
			return ledger.MarkResult{FirstTimestamp: r.Timestamp}, nil
		}
	}
	m.records = append(m.records, ledger.Record{Label: label, Name: name, Timestamp: now})
	return ledger.MarkResult{Marked: true, FirstTimestamp: now}, nil
}

func (m *MockLedger) Records(ctx context.Context) ([]ledger.Record, error) {
	if m.RecordsError != nil {
		return nil, m.RecordsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *MockLedger) Today(ctx context.Context, now time.Time) ([]ledger.Record, error) {
	all, err := m.Records(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.TodayOf(all, now), nil
}

func (m *MockLedger) Close() error {
	return nil
}

// Calls returns the number of MarkIfAbsent calls.
func (m *MockLedger) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
