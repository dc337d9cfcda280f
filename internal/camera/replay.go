package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/raster"
)

// Replay plays back the image files of a directory in name order. It is
// used for offline runs and for reproducing a session from recorded frames.
type Replay struct {
	files []string
	loop  bool

	mu   sync.Mutex
	next int
}

// NewReplay lists the image files in dir. With loop set the sequence
// restarts after the last frame instead of returning ErrEndOfStream.
func NewReplay(dir string, loop bool) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading replay directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && raster.IsImageFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	sort.Strings(files)

	return &Replay{files: files, loop: loop}, nil
}

// Len returns the number of frames in one pass.
func (r *Replay) Len() int {
	return len(r.files)
}

func (r *Replay) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.next >= len(r.files) {
		if !r.loop {
			r.mu.Unlock()
			return nil, ErrEndOfStream
		}
		r.next = 0
	}
	path := r.files[r.next]
	r.next++
	r.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCamera, err)
	}
	defer f.Close()

	img, err := raster.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCamera, path, err)
	}
	return img, nil
}

func (r *Replay) Close() error {
	return nil
}
