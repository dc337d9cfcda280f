// Package samples stores normalized face rasters on disk, one directory
// per identity named "{label}_{name}".
package samples

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/renameio"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/raster"
)

// ErrLabelTaken is returned when registering a label that already belongs
// to a different name.
var ErrLabelTaken = errors.New("label already registered to another name")

// Sample is one stored face raster.
type Sample struct {
	Identity identity.Identity
	Path     string
	Raster   *image.Gray
}

// Skipped describes a directory or file excluded while scanning the store.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Store is the on-disk sample store.
type Store struct {
	root string
	size image.Point
	mu   sync.Mutex
}

// NewStore creates a store rooted at root holding rasters of the given size.
func NewStore(root string, size image.Point) *Store {
	return &Store{root: root, size: size}
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Size returns the fixed raster size.
func (s *Store) Size() image.Point {
	return s.size
}

func (s *Store) dir(id identity.Identity) string {
	return filepath.Join(s.root, id.DirName())
}

// Register creates the identity directory. Registering the same identity
// twice is a no-op.
func (s *Store) Register(id identity.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, _, err := s.identities()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing.Label == id.Label && existing.Name != id.Name {
			return fmt.Errorf("%w: %d is %q", ErrLabelTaken, id.Label, existing.Name)
		}
	}

	if err := os.MkdirAll(s.dir(id), 0o755); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}
	return nil
}

// Add writes a new sample for the identity and returns its path. The raster
// must already have the store's fixed size.
func (s *Store) Add(id identity.Identity, g *image.Gray) (string, error) {
	if err := raster.CheckSize(g, s.size); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating identity directory: %w", err)
	}

	next, err := nextSequence(dir)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, strconv.Itoa(next)+constants.SampleFileExt)
	data, err := raster.EncodeBytes(path, g)
	if err != nil {
		return "", err
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing sample %s: %w", path, err)
	}
	return path, nil
}

// Identities scans the store and returns the identities found, sorted by
// label. Directories that do not parse as "{label}_{name}" are reported as
// skipped. A missing store directory yields no identities.
func (s *Store) Identities() ([]identity.Identity, []Skipped, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identities()
}

func (s *Store) identities() ([]identity.Identity, []Skipped, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading sample store: %w", err)
	}

	var ids []identity.Identity
	var skipped []Skipped
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		id, err := identity.ParseDirName(e.Name())
		if err != nil {
			skipped = append(skipped, Skipped{Path: filepath.Join(s.root, e.Name()), Reason: err.Error()})
			continue
		}
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b identity.Identity) int { return a.Label - b.Label })
	return ids, skipped, nil
}

// Roster builds the label to name projection for a session. Duplicate
// labels are reported as skipped.
func (s *Store) Roster() (*identity.Roster, []Skipped, error) {
	ids, skipped, err := s.Identities()
	if err != nil {
		return nil, nil, err
	}
	roster, dups := identity.NewRoster(ids)
	for _, d := range dups {
		skipped = append(skipped, Skipped{Path: filepath.Join(s.root, d.DirName()), Reason: "duplicate label"})
	}
	return roster, skipped, nil
}

// Files returns the sample files of an identity in sequence order.
func (s *Store) Files(id identity.Identity) ([]string, error) {
	return sampleFiles(s.dir(id))
}

// Count returns the number of samples stored for an identity.
func (s *Store) Count(id identity.Identity) (int, error) {
	files, err := s.Files(id)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// Walk decodes every sample of every identity and calls fn for each.
// Unparsable directories and undecodable files are skipped and reported.
// Rasters of the wrong size are resized to the store size.
func (s *Store) Walk(fn func(Sample) error) ([]Skipped, error) {
	ids, skipped, err := s.Identities()
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		files, err := s.Files(id)
		if err != nil {
			skipped = append(skipped, Skipped{Path: s.dir(id), Reason: err.Error()})
			continue
		}
		for _, path := range files {
			g, err := raster.DecodeGrayFile(path)
			if err != nil {
				skipped = append(skipped, Skipped{Path: path, Reason: err.Error()})
				continue
			}
			if err := fn(Sample{Identity: id, Path: path, Raster: raster.Fit(g, s.size)}); err != nil {
				return skipped, err
			}
		}
	}
	return skipped, nil
}

// Remove deletes an identity and all of its samples.
func (s *Store) Remove(id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.dir(id)); err != nil {
		return fmt.Errorf("removing %s: %w", id.DirName(), err)
	}
	return nil
}

// sampleFiles lists image files in dir sorted by their numeric sequence.
func sampleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !raster.IsImageFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.SortFunc(names, func(a, b string) int {
		if d := sequence(a) - sequence(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// sequence extracts the trailing number of a sample file name: "7.png" is 7,
// "1.3.jpg" is 3. Names without a number sort first.
func sequence(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	n, err := strconv.Atoi(base)
	if err != nil {
		return 0
	}
	return n
}

func nextSequence(dir string) (int, error) {
	files, err := sampleFiles(dir)
	if err != nil {
		return 0, err
	}
	next := 1
	for _, f := range files {
		if n := sequence(filepath.Base(f)); n >= next {
			next = n + 1
		}
	}
	return next, nil
}
