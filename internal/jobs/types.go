package jobs

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job has finished.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload carries the upscale parameters supplied at submission.
type JobPayload struct {
	InputPath   string `json:"input_path"`
	OutputDir   string `json:"output_dir"`
	Model       string `json:"model"`
	Scale       int    `json:"scale"`
	BatchSize   int    `json:"batch_size,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
}

type UpscaleJob struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	DedupeKey  string     `json:"dedupe_key"`
	Payload    JobPayload `json:"payload"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	OutputPath string     `json:"output_path,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
