package settings

import (
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Data holds the persisted settings values. Absent keys keep their
// defaults when loading from a file.
type Data struct {
	// NaNHandling makes effects scan for and fix NaN pixel values.
	NaNHandling bool `toml:"nan_handling"`

	// TransformConcatenation lets chains of transform nodes concatenate
	// into a single resampling.
	TransformConcatenation bool `toml:"transform_concatenation"`
}

// Defaults returns the default settings values.
func Defaults() Data {
	return Data{
		NaNHandling:            true,
		TransformConcatenation: true,
	}
}

// Store is a process-wide settings store implementing
// rendertree.Settings. Renders read it once at construction and freeze
// the values, so mutating the store mid-render only affects renders
// created afterwards.
type Store struct {
	mu   sync.RWMutex
	data Data
}

// New creates a store holding the defaults.
func New() *Store {
	return &Store{data: Defaults()}
}

// Load creates a store from a TOML settings file. Keys absent from the
// file keep their default values.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: reading %s: %w", path, err)
	}
	data := Defaults()
	if err := toml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("settings: parsing %s: %w", path, err)
	}
	return &Store{data: data}, nil
}

// NaNHandling reports whether NaN pixel handling is enabled.
func (s *Store) NaNHandling() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.NaNHandling
}

// TransformConcatenation reports whether transform concatenation is
// enabled.
func (s *Store) TransformConcatenation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.TransformConcatenation
}

// SetNaNHandling updates the NaN handling policy for future renders.
func (s *Store) SetNaNHandling(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.NaNHandling = v
}

// SetTransformConcatenation updates the concatenation policy for future
// renders.
func (s *Store) SetTransformConcatenation(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.TransformConcatenation = v
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}
