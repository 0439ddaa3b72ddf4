package provider

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/preslavrachev/sitebase/core"
)

// modeKey is the preference key holding the selected backend
const modeKey = "database_mode"

// PreferenceStore persists the selected mode between runs
type PreferenceStore interface {
	// LoadMode returns the stored mode, or ok=false when none is stored
	LoadMode() (mode string, ok bool, err error)
	SaveMode(mode core.Mode) error
}

// FileStore keeps preferences in a YAML file. Keys other than the mode are
// preserved on save.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPreferencesPath is preferences.yaml under the user config directory
func DefaultPreferencesPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "sitebase", "preferences.yaml"), nil
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	prefs := map[string]any{}
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}
	if prefs == nil {
		prefs = map[string]any{}
	}
	return prefs, nil
}

// LoadMode reads database_mode from the file
func (s *FileStore) LoadMode() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil {
		return "", false, err
	}
	mode, ok := prefs[modeKey].(string)
	return mode, ok && mode != "", nil
}

// SaveMode writes database_mode, replacing the file atomically
func (s *FileStore) SaveMode(mode core.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil {
		return err
	}
	prefs[modeKey] = mode.String()

	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

// MemoryStore keeps the mode in memory
type MemoryStore struct {
	mu   sync.Mutex
	mode string
}

// NewMemoryStore creates a store, optionally pre-seeded with a mode
func NewMemoryStore(mode string) *MemoryStore {
	return &MemoryStore{mode: mode}
}

// LoadMode returns the held mode
func (s *MemoryStore) LoadMode() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.mode != "", nil
}

// SaveMode replaces the held mode
func (s *MemoryStore) SaveMode(mode core.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode.String()
	return nil
}
