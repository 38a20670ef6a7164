package broker

import "context"

// TaskState is the broker-reported execution state of a task.
type TaskState string

const (
	StatePending TaskState = "PENDING"
	StateStarted TaskState = "STARTED"
	StateRetry   TaskState = "RETRY"
	StateSuccess TaskState = "SUCCESS"
	StateFailure TaskState = "FAILURE"
	StateRevoked TaskState = "REVOKED"
	StateUnknown TaskState = "UNKNOWN"
)

// Lanes. Per-message broker priority is not relied upon; high-priority
// work is guaranteed to be pulled first by draining lanes in order.
const (
	LaneHighPriority = "high_priority"
	LaneEvaluation   = "evaluation"
)

// TaskPayload is the work description submitted to a lane.
// Either Code is inlined or CodeRef points at an object storage key.
type TaskPayload struct {
	EvalID        string  `json:"eval_id"`
	Code          string  `json:"code,omitempty"`
	CodeRef       string  `json:"code_ref,omitempty"`
	Language      string  `json:"language"`
	TimeoutSec    int     `json:"timeout"`
	ExecutorImage string  `json:"executor_image,omitempty"`
	MemoryLimitMB int     `json:"memory_limit_mb,omitempty"`
	CPULimit      float64 `json:"cpu_limit,omitempty"`
}

// TaskResult is the outcome reported by an executor.
type TaskResult struct {
	Successful bool   `json:"successful"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Traceback  string `json:"traceback,omitempty"`
}

// Broker is the narrow surface the orchestration core needs from a task
// broker. Implementations must not panic across this boundary.
type Broker interface {
	// Submit queues a payload on a lane and returns the broker task id.
	Submit(ctx context.Context, lane string, payload TaskPayload) (string, error)

	// State returns the current task state. A task the broker has no
	// record of reports StateUnknown, not an error.
	State(ctx context.Context, taskID string) (TaskState, error)

	// Revoke removes a not-yet-started task; with terminate it also
	// signals executors to kill a running one.
	Revoke(ctx context.Context, taskID string, terminate bool) error

	// Result returns the task result, or nil if not ready.
	Result(ctx context.Context, taskID string) (*TaskResult, error)
}
