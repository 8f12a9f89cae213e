package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeEmpty(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
}

func TestCountByExt(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, dir, "frame_000001.png")
	writeEmpty(t, dir, "frame_000002.png")
	writeEmpty(t, dir, "frame_000003.PNG")
	writeEmpty(t, dir, "audio.mka")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	count, err := CountByExt(dir, ".png")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestListByExt_SortedFrameOrder(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, dir, "frame_000010.png")
	writeEmpty(t, dir, "frame_000002.png")
	writeEmpty(t, dir, "frame_000001.png")
	writeEmpty(t, dir, "notes.txt")

	names, err := ListByExt(dir, ".png")
	require.NoError(t, err)
	require.Equal(t, []string{
		"frame_000001.png",
		"frame_000002.png",
		"frame_000010.png",
	}, names)
}

func TestReplaceExt(t *testing.T) {
	require.Equal(t, filepath.Join("a", "b.mp4"), ReplaceExt(filepath.Join("a", "b.mkv"), ".mp4"))
	require.Equal(t, filepath.Join("a", "b.mp4"), ReplaceExt(filepath.Join("a", "b"), "mp4"))
}

func TestStem(t *testing.T) {
	require.Equal(t, "movie", Stem("/videos/movie.mkv"))
	require.Equal(t, "movie", Stem("movie"))
}
