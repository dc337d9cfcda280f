// Package identity defines enrolled people and the label to name roster
// shared by the sample store, the recognition model and the ledger.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidDirName is returned when a sample directory name is not "{label}_{name}".
	ErrInvalidDirName = errors.New("invalid identity directory name")

	// ErrInvalidIdentity is returned by Validate.
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Identity is an enrolled person. The label is the only join key between
// the sample store, the model and the ledger.
type Identity struct {
	Label int    `json:"label"`
	Name  string `json:"name"`
}

// New validates and returns an identity.
func New(label int, name string) (Identity, error) {
	id := Identity{Label: label, Name: strings.TrimSpace(name)}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks the label is non-negative and the name is usable as a
// path component.
func (id Identity) Validate() error {
	if id.Label < 0 {
		return fmt.Errorf("%w: label %d must not be negative", ErrInvalidIdentity, id.Label)
	}
	if id.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidIdentity)
	}
	if strings.ContainsAny(id.Name, `/\`) || id.Name == "." || id.Name == ".." {
		return fmt.Errorf("%w: name %q is not a valid directory component", ErrInvalidIdentity, id.Name)
	}
	return nil
}

// DirName returns the sample store directory name "{label}_{name}".
func (id Identity) DirName() string {
	return strconv.Itoa(id.Label) + "_" + id.Name
}

func (id Identity) String() string {
	return fmt.Sprintf("%s (%d)", id.Name, id.Label)
}

// ParseDirName parses a "{label}_{name}" directory name. The name is
// everything after the first underscore and may itself contain underscores.
func ParseDirName(dir string) (Identity, error) {
	labelPart, name, ok := strings.Cut(dir, "_")
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q has no label separator", ErrInvalidDirName, dir)
	}
	label, err := strconv.Atoi(labelPart)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q label is not numeric", ErrInvalidDirName, dir)
	}
	id := Identity{Label: label, Name: name}
	if err := id.Validate(); err != nil {
		return Identity{}, fmt.Errorf("%w: %q: %v", ErrInvalidDirName, dir, err)
	}
	return id, nil
}
