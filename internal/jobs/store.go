package jobs

import "context"

// Store persists job states for queue restart recovery and history.
type Store interface {
	LoadJobs(ctx context.Context) ([]*UpscaleJob, error)
	UpsertJob(ctx context.Context, job *UpscaleJob) error
	DeleteJob(ctx context.Context, jobID string) error
}
