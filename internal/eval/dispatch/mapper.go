package dispatch

import (
	"context"
	"time"

	"evalhub/internal/common/cache"
	appErr "evalhub/pkg/errors"
	"evalhub/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	taskMappingPrefix = "task_mapping:"
	evalMappingPrefix = "eval_mapping:"

	// DefaultMappingTTL must exceed the longest expected evaluation runtime.
	DefaultMappingTTL = 24 * time.Hour
)

// TaskMapper maintains a bidirectional TTL-bounded mapping between an
// evaluation id and a broker task id. Mappings are never explicitly
// deleted; they expire naturally, and a missing mapping is a valid
// "task not found" outcome.
type TaskMapper struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewTaskMapper creates a task mapper with the given mapping TTL.
func NewTaskMapper(cacheClient cache.Cache, ttl time.Duration) *TaskMapper {
	if ttl <= 0 {
		ttl = DefaultMappingTTL
	}
	return &TaskMapper{cache: cacheClient, ttl: ttl}
}

// RecordMapping writes both directions of the mapping. A partial write is
// logged but not fatal: the task is already submitted to the broker and
// cannot be un-submitted.
func (m *TaskMapper) RecordMapping(ctx context.Context, evalID, taskID string) error {
	if m.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	var firstErr error
	if err := m.cache.Set(ctx, taskMappingPrefix+evalID, taskID, m.ttl); err != nil {
		logger.Error(ctx, "record task mapping failed",
			zap.String("eval_id", evalID), zap.String("task_id", taskID), zap.Error(err))
		firstErr = err
	}
	if err := m.cache.Set(ctx, evalMappingPrefix+taskID, evalID, m.ttl); err != nil {
		logger.Error(ctx, "record eval mapping failed",
			zap.String("eval_id", evalID), zap.String("task_id", taskID), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return appErr.Wrapf(firstErr, appErr.CacheError, "record mapping failed")
	}
	return nil
}

// LookupTask returns the broker task id for an evaluation, or an empty
// string when no mapping exists.
func (m *TaskMapper) LookupTask(ctx context.Context, evalID string) (string, error) {
	if m.cache == nil {
		return "", appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	return m.cache.Get(ctx, taskMappingPrefix+evalID)
}

// LookupEval returns the evaluation id for a broker task, or an empty
// string when no mapping exists.
func (m *TaskMapper) LookupEval(ctx context.Context, taskID string) (string, error) {
	if m.cache == nil {
		return "", appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	return m.cache.Get(ctx, evalMappingPrefix+taskID)
}
