package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Bryndin/video-upscaler/pkg/log"
)

// dirPrefix marks workspace directories so the sweeper can tell them apart
// from unrelated entries under the work root.
const dirPrefix = "upscale-"

// WorkspaceError reports a failure to set up or tear down a job workspace.
type WorkspaceError struct {
	Reason string
	Err    error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace: %s", e.Reason)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// Workspace is the scoped temporary directory tree owned by exactly one job.
type Workspace struct {
	Root        string
	FrameDir    string
	UpscaledDir string
	AudioDir    string
	OutDir      string
}

// Manager creates and destroys per-job workspace trees under a common root.
type Manager struct {
	root string
}

func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Acquire creates the directory tree for jobID. The job identifier keeps the
// name unique; a leftover tree with the same name is a collision.
func (m *Manager) Acquire(jobID string) (*Workspace, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, &WorkspaceError{Reason: "job id is required"}
	}

	root := filepath.Join(m.root, dirPrefix+jobID)
	if _, err := os.Stat(root); err == nil {
		return nil, &WorkspaceError{
			Reason: fmt.Sprintf("workspace already exists: %s", root),
		}
	}

	ws := &Workspace{
		Root:        root,
		FrameDir:    filepath.Join(root, "frames"),
		UpscaledDir: filepath.Join(root, "upscaled"),
		AudioDir:    filepath.Join(root, "audio"),
		OutDir:      filepath.Join(root, "out"),
	}
	for _, dir := range []string{ws.FrameDir, ws.UpscaledDir, ws.AudioDir, ws.OutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = os.RemoveAll(root)
			return nil, &WorkspaceError{
				Reason: fmt.Sprintf("cannot create %s", dir),
				Err:    err,
			}
		}
	}
	return ws, nil
}

// Release removes the workspace tree. Safe to call on a nil workspace.
func (m *Manager) Release(ws *Workspace) error {
	if ws == nil || ws.Root == "" {
		return nil
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		return &WorkspaceError{
			Reason: fmt.Sprintf("cannot remove %s", ws.Root),
			Err:    err,
		}
	}
	return nil
}

// With acquires a workspace for jobID, runs fn, and releases the workspace
// on every exit path including panics.
func (m *Manager) With(jobID string, fn func(ws *Workspace) error) error {
	ws, err := m.Acquire(jobID)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Release(ws); err != nil {
			log.Error("Failed to release workspace %s: %v", ws.Root, err)
		}
	}()
	return fn(ws)
}

// Sweep removes workspace trees older than maxAge that were left behind by
// a crashed process. Returns the number of trees removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &WorkspaceError{Reason: "cannot read work root", Err: err}
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn("Sweep could not remove %s: %v", path, err)
			continue
		}
		log.Info("Swept orphaned workspace %s", path)
		removed++
	}
	return removed, nil
}
