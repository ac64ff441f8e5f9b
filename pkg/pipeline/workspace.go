package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the temp directory that holds every intermediate file of
// one run. Close removes it and everything in it.
type Workspace struct {
	Dir string
}

func NewWorkspace(root string) (*Workspace, error) {
	dir, err := os.MkdirTemp(root, "voiceboost-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Path returns the location of name inside the workspace. Directory parts of
// name are dropped.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, filepath.Base(name))
}

func (w *Workspace) Close() error {
	return os.RemoveAll(w.Dir)
}
