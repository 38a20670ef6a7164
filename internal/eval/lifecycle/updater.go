package lifecycle

import (
	"context"
	"time"

	"evalhub/internal/eval/model"
	appErr "evalhub/pkg/errors"
	"evalhub/pkg/utils/logger"

	"go.uber.org/zap"
)

// EvaluationStore is the narrow storage surface the updater needs.
// Production code supplies the storage HTTP API client, tests a stub.
type EvaluationStore interface {
	GetEvaluation(ctx context.Context, evalID string) (*model.Evaluation, error)
	UpdateEvaluation(ctx context.Context, evalID string, fields map[string]interface{}) error
}

// UpdateResult is the outcome of a status update attempt. A rejected
// transition is an expected outcome, not an error.
type UpdateResult struct {
	OK     bool
	Reason string
}

// StatusUpdater orchestrates the read-validate-write cycle for evaluation
// status changes and computes derived timestamps and metrics.
type StatusUpdater struct {
	store   EvaluationStore
	machine *StateMachine
	now     func() time.Time
}

// NewStatusUpdater creates a status updater.
func NewStatusUpdater(store EvaluationStore, machine *StateMachine) *StatusUpdater {
	return &StatusUpdater{
		store:   store,
		machine: machine,
		now:     time.Now,
	}
}

// startableFrom are the statuses from which entering running sets started_at.
var startableFrom = map[model.Status]bool{
	model.StatusSubmitted:    true,
	model.StatusQueued:       true,
	model.StatusProvisioning: true,
}

// UpdateStatus transitions an evaluation to newStatus.
//
// The returned error is non-nil only for not-found and upstream
// communication failures; a validation rejection comes back as
// (UpdateResult{OK: false, Reason: ...}, nil). force bypasses transition
// validation only, never the derived-field computation or the write.
func (u *StatusUpdater) UpdateStatus(ctx context.Context, evalID string, newStatus model.Status, extra map[string]interface{}, force bool) (UpdateResult, error) {
	current, err := u.store.GetEvaluation(ctx, evalID)
	if err != nil {
		if appErr.Is(err, appErr.EvaluationNotFound) {
			return UpdateResult{Reason: "evaluation not found"}, err
		}
		logger.Error(ctx, "fetch evaluation for status update failed",
			zap.String("eval_id", evalID), zap.Error(err))
		return UpdateResult{Reason: "failed to get evaluation"}, err
	}

	if !force {
		if ok, reason := u.machine.ValidateTransition(current.Status, newStatus); !ok {
			logger.Info(ctx, "status transition rejected",
				zap.String("eval_id", evalID),
				zap.String("from", string(current.Status)),
				zap.String("to", string(newStatus)),
				zap.String("reason", reason))
			return UpdateResult{Reason: reason}, nil
		}
	}

	fields := map[string]interface{}{"status": string(newStatus)}
	for k, v := range extra {
		fields[k] = v
	}

	now := u.now().UTC()
	if newStatus == model.StatusRunning && startableFrom[current.Status] {
		fields["started_at"] = now.Format(time.RFC3339Nano)
	}
	if u.machine.IsTerminal(newStatus) {
		fields["completed_at"] = now.Format(time.RFC3339Nano)
		if current.StartedAt != nil {
			fields["runtime_ms"] = now.Sub(*current.StartedAt).Milliseconds()
		}
	}

	if err := u.store.UpdateEvaluation(ctx, evalID, fields); err != nil {
		logger.Error(ctx, "write evaluation status failed",
			zap.String("eval_id", evalID),
			zap.String("status", string(newStatus)),
			zap.Error(err))
		return UpdateResult{Reason: "failed to update evaluation"}, err
	}
	return UpdateResult{OK: true}, nil
}
