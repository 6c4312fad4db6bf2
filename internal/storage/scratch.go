package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Scratch manages per-project temp directories under a shared root. Each
// processing attempt exclusively owns its directory and may delete it
// unconditionally when the attempt ends.
type Scratch struct {
	root string
}

// NewScratch creates the scratch root if needed.
func NewScratch(root string) (*Scratch, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch root: %w", err)
	}
	return &Scratch{root: root}, nil
}

// Root returns the shared scratch root directory.
func (s *Scratch) Root() string {
	return s.root
}

// ProjectDir creates and returns the scratch directory for one project.
func (s *Scratch) ProjectDir(projectID string) (string, error) {
	dir := filepath.Join(s.root, projectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create project scratch dir: %w", err)
	}
	return dir, nil
}

// Remove deletes a project's scratch directory and everything in it.
func (s *Scratch) Remove(projectID string) error {
	return os.RemoveAll(filepath.Join(s.root, projectID))
}
