package jobs

import "context"

// Store persists job states so the queue survives restarts.
type Store interface {
	LoadJobs(ctx context.Context) ([]*Job, error)
	UpsertJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, jobID string) error
	// DeleteJobData removes auxiliary rows kept for a job.
	DeleteJobData(ctx context.Context, jobID string) error
}
