package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bryndin/video-upscaler/internal/jobs"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "upscaler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()
	job := &jobs.UpscaleJob{
		ID:        "job-1",
		Source:    "api",
		DedupeKey: "/media/a.mkv|realesr-animevideov3|2",
		Payload: jobs.JobPayload{
			InputPath:   "/media/a.mkv",
			OutputDir:   "/media/out",
			Model:       "realesr-animevideov3",
			Scale:       2,
			BatchSize:   200,
			Concurrency: 1,
		},
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, job.ID, all[0].ID)
	assert.Equal(t, job.Status, all[0].Status)
	assert.Equal(t, job.Payload, all[0].Payload)
}

func TestSQLiteStore_UpsertOverwrites(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := &jobs.UpscaleJob{
		ID:        "job-1",
		Source:    "api",
		Payload:   jobs.JobPayload{InputPath: "/media/a.mkv", Model: "realesrgan-x4plus", Scale: 4},
		Status:    jobs.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	job.Status = jobs.StatusSuccess
	job.OutputPath = "/media/out/upscaled_a.mp4"
	job.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, jobs.StatusSuccess, all[0].Status)
	assert.Equal(t, "/media/out/upscaled_a.mp4", all[0].OutputPath)
}

func TestSQLiteStore_DeleteJob(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"job-1", "job-2"} {
		require.NoError(t, store.UpsertJob(ctx, &jobs.UpscaleJob{
			ID:        id,
			Payload:   jobs.JobPayload{InputPath: "/media/" + id + ".mkv"},
			Status:    jobs.StatusFailed,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "job-2", all[0].ID)
}

func TestSQLiteStore_LoadJobsOrderedByCreation(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"j-b", "j-a", "j-c"} {
		require.NoError(t, store.UpsertJob(ctx, &jobs.UpscaleJob{
			ID:        id,
			Payload:   jobs.JobPayload{InputPath: "/media/x.mkv"},
			Status:    jobs.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base,
		}))
	}

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "j-b", all[0].ID)
	assert.Equal(t, "j-c", all[2].ID)
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewSQLiteStore("  ")
	require.Error(t, err)
}
