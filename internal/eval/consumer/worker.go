package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"evalhub/internal/common/cache"
	"evalhub/internal/eval/lifecycle"
	"evalhub/internal/eval/model"
	"evalhub/pkg/utils/logger"

	"go.uber.org/zap"
)

// EvaluationCreator is the storage surface the worker needs beyond the
// status updater: idempotent record creation for queued events.
type EvaluationCreator interface {
	CreateEvaluation(ctx context.Context, ev *model.Evaluation) error
}

// Config holds worker dependencies.
type Config struct {
	Cache   cache.Cache
	Creator EvaluationCreator
	Updater *lifecycle.StatusUpdater
	Logs    *LogBatcher
	Leases  *LeaseStore

	// Mirror is optional; when set, terminal statuses are republished to
	// the message queue.
	Mirror *StatusMirror
}

// Worker is the single consumer keeping the storage system consistent
// with the stream of lifecycle and log events. Pub/sub gives no
// cross-channel ordering guarantee, so every transition attempt goes
// through the status updater's validate step rather than assuming prior
// state. Messages are processed one at a time; only log-flush timers run
// as independent background tasks.
type Worker struct {
	cache   cache.Cache
	creator EvaluationCreator
	updater *lifecycle.StatusUpdater
	logs    *LogBatcher
	leases  *LeaseStore
	mirror  *StatusMirror
}

// NewWorker creates a storage consistency worker.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Creator == nil {
		return nil, fmt.Errorf("evaluation creator is required")
	}
	if cfg.Updater == nil {
		return nil, fmt.Errorf("status updater is required")
	}
	if cfg.Logs == nil {
		return nil, fmt.Errorf("log batcher is required")
	}
	if cfg.Leases == nil {
		return nil, fmt.Errorf("lease store is required")
	}
	return &Worker{
		cache:   cfg.Cache,
		creator: cfg.Creator,
		updater: cfg.Updater,
		logs:    cfg.Logs,
		leases:  cfg.Leases,
		mirror:  cfg.Mirror,
	}, nil
}

// Run subscribes to the lifecycle channels and the log channel pattern
// and consumes until the context is cancelled. Malformed messages are
// logged and dropped; the loop never crashes on one event.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.cache.Subscribe(ctx,
		[]string{model.ChannelQueued, model.ChannelRunning, model.ChannelCompleted, model.ChannelFailed},
		[]string{model.LogChannelPattern})
	if err != nil {
		return fmt.Errorf("subscribe to event channels failed: %w", err)
	}
	defer func() {
		_ = sub.Close()
	}()

	logger.Info(ctx, "storage consistency worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "storage consistency worker stopping")
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return fmt.Errorf("event subscription closed")
			}
			w.Handle(ctx, msg)
		}
	}
}

// Handle routes one message by channel. Exposed for tests.
func (w *Worker) Handle(ctx context.Context, msg cache.Message) {
	if strings.HasSuffix(msg.Channel, ":logs") {
		w.handleLogs(ctx, msg)
		return
	}
	switch msg.Channel {
	case model.ChannelQueued:
		w.handleQueued(ctx, msg.Payload)
	case model.ChannelRunning:
		w.handleRunning(ctx, msg.Payload)
	case model.ChannelCompleted:
		w.handleTerminal(ctx, msg.Payload, model.StatusCompleted)
	case model.ChannelFailed:
		w.handleTerminal(ctx, msg.Payload, model.StatusFailed)
	default:
		logger.Warn(ctx, "message on unexpected channel dropped",
			zap.String("channel", msg.Channel))
	}
}

func (w *Worker) handleQueued(ctx context.Context, payload string) {
	event, ok := w.decode(ctx, model.ChannelQueued, payload)
	if !ok {
		return
	}
	now := time.Now().UTC()
	ev := &model.Evaluation{
		ID:        event.EvalID,
		Status:    model.StatusQueued,
		Code:      event.Code,
		Language:  event.Language,
		CreatedAt: &now,
		Metadata:  event.Metadata,
	}
	if err := w.creator.CreateEvaluation(ctx, ev); err != nil {
		// Fire-and-forget: the event's effect is lost, surfaced for
		// alerting. Subsequent status queries reflect the last applied
		// state.
		logger.Error(ctx, "create evaluation record failed, event dropped",
			zap.String("eval_id", event.EvalID), zap.Error(err))
		return
	}
	w.confirm(ctx, event.EvalID, model.StatusQueued)
}

func (w *Worker) handleRunning(ctx context.Context, payload string) {
	event, ok := w.decode(ctx, model.ChannelRunning, payload)
	if !ok {
		return
	}
	extra := map[string]interface{}{}
	if event.ExecutorID != "" {
		extra["executor_id"] = event.ExecutorID
	}
	if event.ContainerID != "" {
		extra["container_id"] = event.ContainerID
	}
	result, err := w.updater.UpdateStatus(ctx, event.EvalID, model.StatusRunning, extra, false)
	if err != nil {
		logger.Error(ctx, "apply running event failed, event dropped",
			zap.String("eval_id", event.EvalID), zap.Error(err))
		return
	}
	if !result.OK {
		logger.Warn(ctx, "running event rejected",
			zap.String("eval_id", event.EvalID), zap.String("reason", result.Reason))
		return
	}

	lease := model.RunningLease{
		ExecutorID:  event.ExecutorID,
		ContainerID: event.ContainerID,
		StartedAt:   time.Now().UTC(),
		TimeoutSec:  event.TimeoutSec,
	}
	if err := w.leases.Mark(ctx, event.EvalID, lease); err != nil {
		logger.Error(ctx, "mark running lease failed",
			zap.String("eval_id", event.EvalID), zap.Error(err))
	}
	w.confirm(ctx, event.EvalID, model.StatusRunning)
}

func (w *Worker) handleTerminal(ctx context.Context, payload string, status model.Status) {
	event, ok := w.decode(ctx, string(status), payload)
	if !ok {
		return
	}
	extra := map[string]interface{}{}
	if event.Output != "" {
		extra["output"] = event.Output
	}
	if event.Error != "" {
		extra["error"] = event.Error
	}
	if len(event.Metadata) > 0 {
		extra["metadata"] = event.Metadata
	}
	result, err := w.updater.UpdateStatus(ctx, event.EvalID, status, extra, false)
	if err != nil {
		logger.Error(ctx, "apply terminal event failed, event dropped",
			zap.String("eval_id", event.EvalID),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	if !result.OK {
		logger.Warn(ctx, "terminal event rejected",
			zap.String("eval_id", event.EvalID),
			zap.String("status", string(status)),
			zap.String("reason", result.Reason))
		return
	}

	// The lease may or may not exist: a completed event can arrive
	// before the running event was ever observed. Clear unconditionally.
	if err := w.leases.Clear(ctx, event.EvalID); err != nil {
		logger.Error(ctx, "clear running lease failed",
			zap.String("eval_id", event.EvalID), zap.Error(err))
	}
	w.logs.Flush(ctx, event.EvalID)

	if w.mirror != nil {
		mirrorEvent := model.StatusEvent{
			EvalID: event.EvalID,
			Status: status,
			Output: event.Output,
			Error:  event.Error,
		}
		if err := w.mirror.PublishFinal(ctx, mirrorEvent); err != nil {
			logger.Error(ctx, "mirror terminal status failed",
				zap.String("eval_id", event.EvalID), zap.Error(err))
		}
	}
	w.confirm(ctx, event.EvalID, status)
}

func (w *Worker) handleLogs(ctx context.Context, msg cache.Message) {
	evalID := model.EvalIDFromLogChannel(msg.Channel)
	if evalID == "" {
		logger.Warn(ctx, "log message on malformed channel dropped",
			zap.String("channel", msg.Channel))
		return
	}
	var event model.LogEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		logger.Warn(ctx, "malformed log event dropped",
			zap.String("eval_id", evalID), zap.Error(err))
		return
	}
	w.logs.Append(ctx, evalID, event.Content, event.IsFinal)
}

func (w *Worker) decode(ctx context.Context, channel, payload string) (*model.LifecycleEvent, bool) {
	var event model.LifecycleEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		logger.Warn(ctx, "malformed lifecycle event dropped",
			zap.String("channel", channel), zap.Error(err))
		return nil, false
	}
	if event.EvalID == "" {
		logger.Warn(ctx, "lifecycle event without eval_id dropped",
			zap.String("channel", channel))
		return nil, false
	}
	return &event, true
}

func (w *Worker) confirm(ctx context.Context, evalID string, status model.Status) {
	payload, err := json.Marshal(model.ConfirmationEvent{EvalID: evalID, Status: status})
	if err != nil {
		return
	}
	if err := w.cache.Publish(ctx, model.ChannelConfirmed, string(payload)); err != nil {
		logger.Warn(ctx, "publish confirmation event failed",
			zap.String("eval_id", evalID), zap.Error(err))
	}
}
