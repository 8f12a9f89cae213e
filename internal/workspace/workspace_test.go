package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	m := NewManager(t.TempDir())

	ws, err := m.Acquire("job-1")
	require.NoError(t, err)
	require.DirExists(t, ws.FrameDir)
	require.DirExists(t, ws.UpscaledDir)
	require.DirExists(t, ws.AudioDir)
	require.DirExists(t, ws.OutDir)

	require.NoError(t, m.Release(ws))
	require.NoDirExists(t, ws.Root)
}

func TestAcquire_CollisionFails(t *testing.T) {
	m := NewManager(t.TempDir())

	ws, err := m.Acquire("job-1")
	require.NoError(t, err)
	defer m.Release(ws)

	_, err = m.Acquire("job-1")
	var wsErr *WorkspaceError
	require.ErrorAs(t, err, &wsErr)
}

func TestAcquire_EmptyJobID(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.Acquire("  ")
	require.Error(t, err)
}

func TestWith_ReleasesOnError(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	var captured string
	err := m.With("job-err", func(ws *Workspace) error {
		captured = ws.Root
		require.DirExists(t, ws.Root)
		return fmt.Errorf("stage blew up")
	})
	require.EqualError(t, err, "stage blew up")
	require.NoDirExists(t, captured)
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	var captured string
	require.Panics(t, func() {
		_ = m.With("job-panic", func(ws *Workspace) error {
			captured = ws.Root
			panic("crash-adjacent failure")
		})
	})
	require.NoDirExists(t, captured)
}

func TestSweep_RemovesOnlyStaleWorkspaces(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	stale := filepath.Join(root, dirPrefix+"dead")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh, err := m.Acquire("alive")
	require.NoError(t, err)
	defer m.Release(fresh)

	unrelated := filepath.Join(root, "keep-me")
	require.NoError(t, os.MkdirAll(unrelated, 0o755))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	removed, err := m.Sweep(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NoDirExists(t, stale)
	require.DirExists(t, fresh.Root)
	require.DirExists(t, unrelated)
}

func TestSweep_MissingRootIsNoop(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "does-not-exist"))
	removed, err := m.Sweep(time.Hour)
	require.NoError(t, err)
	require.Zero(t, removed)
}
