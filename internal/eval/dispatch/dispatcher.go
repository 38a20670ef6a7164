package dispatch

import (
	"context"
	"fmt"
	"strings"

	"evalhub/internal/common/storage"
	"evalhub/internal/eval/broker"
	"evalhub/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultInlineCodeLimit = 64 << 10

// SubmitInput describes one evaluation to dispatch.
type SubmitInput struct {
	EvalID        string
	Code          string
	Language      string
	Priority      bool
	TimeoutSec    int
	ExecutorImage string
	MemoryLimitMB int
	CPULimit      float64
}

// Config holds dispatcher dependencies and settings.
type Config struct {
	Broker broker.Broker
	Mapper *TaskMapper

	// Storage is optional; when set, source payloads larger than
	// InlineCodeLimit are offloaded and submitted by reference.
	Storage         storage.ObjectStorage
	SourceBucket    string
	InlineCodeLimit int
}

// Dispatcher submits evaluations to one of two priority lanes and records
// the eval-to-task mapping for later cancellation.
type Dispatcher struct {
	broker          broker.Broker
	mapper          *TaskMapper
	storage         storage.ObjectStorage
	sourceBucket    string
	inlineCodeLimit int
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Mapper == nil {
		return nil, fmt.Errorf("task mapper is required")
	}
	if cfg.InlineCodeLimit <= 0 {
		cfg.InlineCodeLimit = defaultInlineCodeLimit
	}
	return &Dispatcher{
		broker:          cfg.Broker,
		mapper:          cfg.Mapper,
		storage:         cfg.Storage,
		sourceBucket:    cfg.SourceBucket,
		inlineCodeLimit: cfg.InlineCodeLimit,
	}, nil
}

// Lane returns the dispatch lane for a priority flag.
func Lane(priority bool) string {
	if priority {
		return broker.LaneHighPriority
	}
	return broker.LaneEvaluation
}

// Submit dispatches one evaluation. It returns the broker task id and
// true on success, and ("", false) when the broker is unavailable or the
// submission fails; callers must treat the latter as "not dispatched",
// never as a crash, since the evaluation may still be servable through a
// fallback path. Mapping-store failures are logged and swallowed.
func (d *Dispatcher) Submit(ctx context.Context, input SubmitInput) (string, bool) {
	if d.broker == nil {
		logger.Warn(ctx, "broker is not configured, evaluation not dispatched",
			zap.String("eval_id", input.EvalID))
		return "", false
	}

	payload := broker.TaskPayload{
		EvalID:        input.EvalID,
		Code:          input.Code,
		Language:      input.Language,
		TimeoutSec:    input.TimeoutSec,
		ExecutorImage: input.ExecutorImage,
		MemoryLimitMB: input.MemoryLimitMB,
		CPULimit:      input.CPULimit,
	}
	d.offloadSource(ctx, &payload)

	lane := Lane(input.Priority)
	taskID, err := d.broker.Submit(ctx, lane, payload)
	if err != nil {
		logger.Error(ctx, "submit evaluation to broker failed",
			zap.String("eval_id", input.EvalID), zap.String("lane", lane), zap.Error(err))
		return "", false
	}

	if err := d.mapper.RecordMapping(ctx, input.EvalID, taskID); err != nil {
		// The task is already in the broker; the mapping failure only
		// degrades later cancellation.
		logger.Error(ctx, "record task mapping after dispatch failed",
			zap.String("eval_id", input.EvalID), zap.String("task_id", taskID), zap.Error(err))
	}

	logger.Info(ctx, "evaluation dispatched",
		zap.String("eval_id", input.EvalID),
		zap.String("task_id", taskID),
		zap.String("lane", lane))
	return taskID, true
}

// offloadSource moves oversized source payloads to object storage and
// rewrites the payload to a reference. Failures fall back to inlining.
func (d *Dispatcher) offloadSource(ctx context.Context, payload *broker.TaskPayload) {
	if d.storage == nil || d.sourceBucket == "" || len(payload.Code) <= d.inlineCodeLimit {
		return
	}
	key := "sources/" + payload.EvalID + ".src"
	_, err := d.storage.PutObject(ctx, d.sourceBucket, key,
		strings.NewReader(payload.Code), int64(len(payload.Code)), "text/plain")
	if err != nil {
		logger.Warn(ctx, "offload source to object storage failed, inlining",
			zap.String("eval_id", payload.EvalID), zap.Error(err))
		return
	}
	payload.CodeRef = key
	payload.Code = ""
}
