package dispatch

import (
	"context"
	"fmt"

	"evalhub/internal/eval/broker"
	"evalhub/pkg/utils/logger"

	"go.uber.org/zap"
)

// CancelOutcome is the result of a cancellation attempt. It is always a
// value, never a panic or propagated broker error.
type CancelOutcome struct {
	Cancelled     bool   `json:"cancelled"`
	Message       string `json:"message"`
	TaskID        string `json:"task_id,omitempty"`
	PreviousState string `json:"previous_state,omitempty"`
	Error         string `json:"error,omitempty"`
}

// TaskInfo is the read-only view of a dispatched task.
type TaskInfo struct {
	Found      bool   `json:"found"`
	TaskID     string `json:"task_id,omitempty"`
	State      string `json:"state,omitempty"`
	Ready      bool   `json:"ready"`
	Successful *bool  `json:"successful,omitempty"`
	Failed     *bool  `json:"failed,omitempty"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Traceback  string `json:"traceback,omitempty"`
}

// CancellationController reconciles client cancel intent with the
// asynchronous broker-reported task state.
type CancellationController struct {
	mapper *TaskMapper
	broker broker.Broker
}

// NewCancellationController creates a cancellation controller.
func NewCancellationController(mapper *TaskMapper, b broker.Broker) *CancellationController {
	return &CancellationController{mapper: mapper, broker: b}
}

// Cancel decides whether and how to cancel the evaluation's task.
//
// A pending task is revoked outright. A started task is only killed when
// terminate is set. Completed, revoked and unknown states are reported
// back without touching the broker.
func (c *CancellationController) Cancel(ctx context.Context, evalID string, terminate bool) CancelOutcome {
	taskID, err := c.mapper.LookupTask(ctx, evalID)
	if err != nil {
		logger.Error(ctx, "lookup task mapping failed",
			zap.String("eval_id", evalID), zap.Error(err))
		return CancelOutcome{Message: "Failed to cancel task", Error: err.Error()}
	}
	if taskID == "" {
		return CancelOutcome{Message: "Task not found"}
	}

	state, err := c.broker.State(ctx, taskID)
	if err != nil {
		logger.Error(ctx, "query task state failed",
			zap.String("eval_id", evalID), zap.String("task_id", taskID), zap.Error(err))
		return CancelOutcome{TaskID: taskID, Message: "Failed to cancel task", Error: err.Error()}
	}

	outcome := CancelOutcome{TaskID: taskID, PreviousState: string(state)}
	switch state {
	case broker.StatePending:
		if err := c.broker.Revoke(ctx, taskID, false); err != nil {
			logger.Error(ctx, "revoke pending task failed",
				zap.String("task_id", taskID), zap.Error(err))
			outcome.Message = "Failed to cancel task"
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Cancelled = true
		outcome.Message = "Task cancelled"
	case broker.StateStarted, broker.StateRetry:
		if !terminate {
			outcome.Message = "Task is already running, use terminate to force cancellation"
			return outcome
		}
		if err := c.broker.Revoke(ctx, taskID, true); err != nil {
			logger.Error(ctx, "terminate running task failed",
				zap.String("task_id", taskID), zap.Error(err))
			outcome.Message = "Failed to cancel task"
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Cancelled = true
		outcome.Message = "Task forcefully terminated"
	case broker.StateSuccess, broker.StateFailure:
		outcome.Message = fmt.Sprintf("Task already completed with state %s", state)
	case broker.StateRevoked:
		outcome.Message = "Task already cancelled"
	default:
		outcome.Message = fmt.Sprintf("unknown task state: %s", state)
	}
	return outcome
}

// TaskInfo resolves the mapping and returns the broker's view of the
// task. A missing mapping yields a not-found result, not an error.
func (c *CancellationController) TaskInfo(ctx context.Context, evalID string) TaskInfo {
	taskID, err := c.mapper.LookupTask(ctx, evalID)
	if err != nil || taskID == "" {
		if err != nil {
			logger.Error(ctx, "lookup task mapping failed",
				zap.String("eval_id", evalID), zap.Error(err))
		}
		return TaskInfo{}
	}

	info := TaskInfo{Found: true, TaskID: taskID}
	state, err := c.broker.State(ctx, taskID)
	if err != nil {
		logger.Error(ctx, "query task state failed",
			zap.String("task_id", taskID), zap.Error(err))
		info.Error = err.Error()
		return info
	}
	info.State = string(state)

	switch state {
	case broker.StateSuccess, broker.StateFailure, broker.StateRevoked:
		info.Ready = true
	default:
		return info
	}

	successful := state == broker.StateSuccess
	failed := state == broker.StateFailure
	info.Successful = &successful
	info.Failed = &failed

	result, err := c.broker.Result(ctx, taskID)
	if err != nil {
		logger.Error(ctx, "query task result failed",
			zap.String("task_id", taskID), zap.Error(err))
		info.Error = err.Error()
		return info
	}
	if result != nil {
		info.Result = result.Result
		info.Error = result.Error
		info.Traceback = result.Traceback
	}
	return info
}
