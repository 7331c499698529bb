// Package state persists whether a project's backlog has been initialized.
//
// The fact lives in a marker file inside the project directory. The file's
// existence is the signal; its contents are informational.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MarkerName is the marker file created after the first successful
// initializer session.
const MarkerName = ".linear_project.json"

// ProjectState is the persisted project fact.
type ProjectState struct {
	Initialized   bool   `json:"initialized"`
	Project       string `json:"project,omitempty"`
	InitializedAt string `json:"initialized_at,omitempty"`
}

// MarkerPath returns the marker location for a project directory.
func MarkerPath(projectDir string) string {
	return filepath.Join(projectDir, MarkerName)
}

// Load reads the marker at path. A missing file means not initialized.
// An existing file means initialized, even if its contents do not parse.
func Load(path string) (ProjectState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ProjectState{}, nil
		}
		return ProjectState{}, fmt.Errorf("state: read marker: %w", err)
	}

	var ps ProjectState
	_ = json.Unmarshal(data, &ps)
	ps.Initialized = true
	return ps, nil
}

// Save writes the marker atomically (tmp + rename), creating parent
// directories if needed.
func Save(path string, ps ProjectState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("state: create directory: %w", err)
	}

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("state: rename marker: %w", err)
	}
	return nil
}

// Store is the Project State Store the loop reads and writes.
type Store interface {
	Initialized() (bool, error)
	MarkInitialized() error
}

// FileStore keeps the fact in the project's marker file.
type FileStore struct {
	Path    string
	Project string
	now     func() time.Time
}

// NewFileStore returns a store for the marker inside projectDir.
func NewFileStore(projectDir, project string) *FileStore {
	return &FileStore{Path: MarkerPath(projectDir), Project: project, now: time.Now}
}

// Initialized reports whether the marker exists.
func (s *FileStore) Initialized() (bool, error) {
	ps, err := Load(s.Path)
	if err != nil {
		return false, err
	}
	return ps.Initialized, nil
}

// MarkInitialized creates or overwrites the marker.
func (s *FileStore) MarkInitialized() error {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return Save(s.Path, ProjectState{
		Initialized:   true,
		Project:       s.Project,
		InitializedAt: now().UTC().Format(time.RFC3339),
	})
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu          sync.Mutex
	initialized bool
	marks       int
}

// NewMemStore returns a MemStore with the given starting fact.
func NewMemStore(initialized bool) *MemStore {
	return &MemStore{initialized: initialized}
}

func (s *MemStore) Initialized() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized, nil
}

func (s *MemStore) MarkInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	s.marks++
	return nil
}

// Marks returns how many times MarkInitialized was called.
func (s *MemStore) Marks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marks
}
