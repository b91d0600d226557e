package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Workspace is the isolated scratch directory for one job. Concurrent jobs
// never share a workspace.
type Workspace struct {
	Root    string
	Decoded string // apktool output tree

	destroyOnce sync.Once
	destroyErr  error
}

// NewWorkspace creates a unique scratch directory under baseDir.
func NewWorkspace(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	name := fmt.Sprintf("job-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
	root := filepath.Join(baseDir, name)
	decoded := filepath.Join(root, "decoded")
	if err := os.MkdirAll(decoded, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{Root: root, Decoded: decoded}, nil
}

// RepackedPath is where the rebuilt, unsigned artifact lands.
func (w *Workspace) RepackedPath() string {
	return filepath.Join(w.Root, "repacked.apk")
}

// SignedDir is the signer's output directory.
func (w *Workspace) SignedDir() string {
	return filepath.Join(w.Root, "signed")
}

// Destroy removes the workspace tree. Safe to call more than once.
func (w *Workspace) Destroy() error {
	w.destroyOnce.Do(func() {
		w.destroyErr = os.RemoveAll(w.Root)
	})
	return w.destroyErr
}
