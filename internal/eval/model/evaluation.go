package model

import "time"

// Status is one lifecycle stage of an evaluation.
type Status string

const (
	StatusSubmitted    Status = "submitted"
	StatusQueued       Status = "queued"
	StatusProvisioning Status = "provisioning"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Evaluation is one submitted unit of code plus its execution outcome.
// Records are mutated exclusively through the status updater and are never
// physically deleted by this service.
type Evaluation struct {
	ID          string            `json:"eval_id"`
	Status      Status            `json:"status"`
	Code        string            `json:"code,omitempty"`
	Language    string            `json:"language,omitempty"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Output      string            `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	RuntimeMS   *int64            `json:"runtime_ms,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// RunningLease marks an evaluation as actively executing on an executor.
// The lease key carries a TTL of timeout plus a fixed buffer so a worker
// that dies mid-execution does not leave a permanent ghost marker.
type RunningLease struct {
	ExecutorID  string    `json:"executor_id"`
	ContainerID string    `json:"container_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	TimeoutSec  int       `json:"timeout"`
}
