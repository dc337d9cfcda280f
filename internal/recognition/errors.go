package recognition

import "errors"

var (
	// ErrModelMissing is returned when no trained model exists at the
	// configured path. Train first.
	ErrModelMissing = errors.New("recognition model not found")

	// ErrModelLoad is returned when a model file exists but the backend
	// cannot read it.
	ErrModelLoad = errors.New("failed to load recognition model")

	// ErrNoSamples is returned by training when the sample store holds no
	// usable face sample.
	ErrNoSamples = errors.New("no usable face samples")

	// ErrNotTrained is returned by a backend asked to predict before it was
	// trained or loaded.
	ErrNotTrained = errors.New("backend is not trained")
)
