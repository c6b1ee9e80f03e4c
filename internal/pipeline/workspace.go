package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// workspace is the working directory owned by exactly one job. Job IDs
// are UUIDs, so two jobs can never collide on a path, and removing the
// directory cannot touch another job's files.
type workspace struct {
	root string
}

func newWorkspace(stagingDir, jobID string) (workspace, error) {
	root := filepath.Join(stagingDir, jobID)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return workspace{}, fmt.Errorf("create working directory: %w", err)
	}
	return workspace{root: root}, nil
}

func (w workspace) Dir() string {
	return w.root
}

func (w workspace) Join(name string) string {
	return filepath.Join(w.root, name)
}

// Remove deletes the working directory and everything under it,
// including any partial encoder output.
func (w workspace) Remove() error {
	if w.root == "" {
		return nil
	}
	return os.RemoveAll(w.root)
}
