package recognition

import (
	"errors"
	"image"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/mock"
	"github.com/kozaktomas/face-attendance/internal/raster"
)

func testRoster() *identity.Roster {
	r, _ := identity.NewRoster([]identity.Identity{{Label: 1, Name: "Asha"}, {Label: 2, Name: "Bo"}})
	return r
}

func TestEngine_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		wantKnown bool
	}{
		{"well below", 40, true},
		{"just below", 69.999, true},
		{"equal is unknown", 70, false},
		{"above", 85, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mock.MockBackend{Label: 1, Score: tt.score}
			e := NewEngine(backend, testRoster(), 70, raster.Square(200))

			res, err := e.Identify(image.NewGray(image.Rect(0, 0, 200, 200)))
			if err != nil {
				t.Fatalf("Identify() error = %v", err)
			}
			if res.Known != tt.wantKnown {
				t.Errorf("Identify() Known = %v, want %v (score %v)", res.Known, tt.wantKnown, tt.score)
			}
			if res.Score != tt.score {
				t.Errorf("Identify() Score = %v, want %v", res.Score, tt.score)
			}
			if tt.wantKnown && (res.Label != 1 || res.Name != "Asha") {
				t.Errorf("Identify() = %+v, want label 1 Asha", res)
			}
			if !tt.wantKnown && (res.Label != UnknownLabel || res.Name != "unknown") {
				t.Errorf("Identify() = %+v, want unknown sentinel", res)
			}
		})
	}
}

func TestEngine_LabelMissingFromRoster(t *testing.T) {
	e := NewEngine(&mock.MockBackend{Label: 9, Score: 10}, testRoster(), 70, raster.Square(200))
	res, err := e.Identify(image.NewGray(image.Rect(0, 0, 200, 200)))
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if res.Known {
		t.Errorf("Identify() = %+v, want unknown for label outside roster", res)
	}
}

func TestEngine_ResizesInput(t *testing.T) {
	var gotSize image.Point
	backend := &mock.MockBackend{PredictFunc: func(face *image.Gray) (int, float64, error) {
		gotSize = face.Bounds().Size()
		return 2, 5, nil
	}}
	e := NewEngine(backend, testRoster(), 70, raster.Square(200))

	res, err := e.Identify(image.NewGray(image.Rect(0, 0, 57, 91)))
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if gotSize != raster.Square(200) {
		t.Errorf("backend saw %v, want 200x200", gotSize)
	}
	if res.Name != "Bo" {
		t.Errorf("Identify() name = %q, want Bo", res.Name)
	}
}

func TestEngine_IdentifyRegion(t *testing.T) {
	e := NewEngine(&mock.MockBackend{Label: 1, Score: 12}, testRoster(), 70, raster.Square(50))
	frame := image.NewRGBA(image.Rect(0, 0, 320, 240))
	region := image.Rect(100, 50, 180, 130)

	res, err := e.IdentifyRegion(frame, region)
	if err != nil {
		t.Fatalf("IdentifyRegion() error = %v", err)
	}
	if res.Region != region {
		t.Errorf("Region = %v, want %v", res.Region, region)
	}

	_, err = e.IdentifyRegion(frame, image.Rect(400, 400, 500, 500))
	if !errors.Is(err, raster.ErrEmptyRegion) {
		t.Errorf("IdentifyRegion() outside frame error = %v, want ErrEmptyRegion", err)
	}
}

func TestEngine_PredictError(t *testing.T) {
	e := NewEngine(&mock.MockBackend{PredictError: ErrNotTrained}, testRoster(), 70, raster.Square(20))
	res, err := e.Identify(image.NewGray(image.Rect(0, 0, 20, 20)))
	if !errors.Is(err, ErrNotTrained) {
		t.Errorf("Identify() error = %v, want ErrNotTrained", err)
	}
	if res.Known {
		t.Error("Identify() on error returned a known result")
	}
}

func TestResult_Similarity(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{0, 100},
		{40, 60},
		{100, 0},
		{180, 0},
	}
	for _, tt := range tests {
		if got := (Result{Score: tt.score}).Similarity(); got != tt.want {
			t.Errorf("Similarity(score=%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}
