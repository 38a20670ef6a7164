package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appErr "evalhub/pkg/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lanePrefix     = "broker:lane:"
	taskPrefix     = "broker:task:"
	controlChannel = "broker:control"

	defaultResultTTL = 24 * time.Hour
)

// ControlSignal is published on the control channel when a running task
// must be killed. Executors subscribe and act on it.
type ControlSignal struct {
	TaskID    string `json:"task_id"`
	Terminate bool   `json:"terminate"`
}

// RedisBroker is a Redis-list backed task broker: one list per lane for
// FIFO delivery, one hash per task for state and result bookkeeping.
type RedisBroker struct {
	client    *redis.Client
	resultTTL time.Duration
}

// NewRedisBroker creates a broker over an existing Redis client.
func NewRedisBroker(client *redis.Client, resultTTL time.Duration) (*RedisBroker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if resultTTL <= 0 {
		resultTTL = defaultResultTTL
	}
	return &RedisBroker{client: client, resultTTL: resultTTL}, nil
}

// Submit queues the payload on a lane and returns the new task id.
func (b *RedisBroker) Submit(ctx context.Context, lane string, payload TaskPayload) (string, error) {
	if lane == "" {
		return "", appErr.New(appErr.InvalidParams).WithMessage("lane is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload failed: %w", err)
	}

	taskID := uuid.NewString()
	taskKey := taskPrefix + taskID
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, taskKey, map[string]interface{}{
		"state":      string(StatePending),
		"lane":       lane,
		"payload":    string(data),
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, taskKey, b.resultTTL)
	pipe.RPush(ctx, lanePrefix+lane, taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", appErr.Wrapf(err, appErr.BrokerError, "submit task failed")
	}
	return taskID, nil
}

// State returns the task state; unknown task ids report StateUnknown.
func (b *RedisBroker) State(ctx context.Context, taskID string) (TaskState, error) {
	state, err := b.client.HGet(ctx, taskPrefix+taskID, "state").Result()
	if err == redis.Nil {
		return StateUnknown, nil
	}
	if err != nil {
		return StateUnknown, appErr.Wrapf(err, appErr.BrokerError, "get task state failed")
	}
	return TaskState(state), nil
}

// Revoke marks the task revoked and removes it from its lane. With
// terminate it additionally signals executors over the control channel.
func (b *RedisBroker) Revoke(ctx context.Context, taskID string, terminate bool) error {
	taskKey := taskPrefix + taskID
	lane, err := b.client.HGet(ctx, taskKey, "lane").Result()
	if err == redis.Nil {
		return appErr.Newf(appErr.TaskNotFound, "task %s not found", taskID)
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.BrokerError, "get task lane failed")
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, taskKey, "state", string(StateRevoked))
	pipe.LRem(ctx, lanePrefix+lane, 1, taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return appErr.Wrapf(err, appErr.RevokeFailed, "revoke task failed")
	}

	if terminate {
		signal, err := json.Marshal(ControlSignal{TaskID: taskID, Terminate: true})
		if err != nil {
			return fmt.Errorf("marshal control signal failed: %w", err)
		}
		if err := b.client.Publish(ctx, controlChannel, signal).Err(); err != nil {
			return appErr.Wrapf(err, appErr.RevokeFailed, "publish terminate signal failed")
		}
	}
	return nil
}

// Result returns the executor-reported result, or nil when not ready.
func (b *RedisBroker) Result(ctx context.Context, taskID string) (*TaskResult, error) {
	data, err := b.client.HGet(ctx, taskPrefix+taskID, "result").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BrokerError, "get task result failed")
	}
	var result TaskResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, appErr.Wrapf(err, appErr.BrokerError, "decode task result failed")
	}
	return &result, nil
}

// Next claims the next task, draining lanes in the given order so
// high-priority lanes are always emptied first. Returns nil when every
// lane is empty. Claiming moves the task to STARTED.
func (b *RedisBroker) Next(ctx context.Context, lanes ...string) (string, *TaskPayload, error) {
	for _, lane := range lanes {
		taskID, err := b.client.LPop(ctx, lanePrefix+lane).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return "", nil, appErr.Wrapf(err, appErr.BrokerError, "pop task failed")
		}

		taskKey := taskPrefix + taskID
		fields, err := b.client.HGetAll(ctx, taskKey).Result()
		if err != nil {
			return "", nil, appErr.Wrapf(err, appErr.BrokerError, "load task failed")
		}
		// Revoked between push and pop: skip it.
		if TaskState(fields["state"]) == StateRevoked {
			continue
		}
		if err := b.client.HSet(ctx, taskKey, "state", string(StateStarted)).Err(); err != nil {
			return "", nil, appErr.Wrapf(err, appErr.BrokerError, "mark task started failed")
		}
		var payload TaskPayload
		if err := json.Unmarshal([]byte(fields["payload"]), &payload); err != nil {
			return "", nil, appErr.Wrapf(err, appErr.BrokerError, "decode task payload failed")
		}
		return taskID, &payload, nil
	}
	return "", nil, nil
}

// SetResult records the executor outcome and moves the task to its
// terminal state.
func (b *RedisBroker) SetResult(ctx context.Context, taskID string, result TaskResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal task result failed: %w", err)
	}
	state := StateSuccess
	if !result.Successful {
		state = StateFailure
	}
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, taskPrefix+taskID, map[string]interface{}{
		"state":  string(state),
		"result": string(data),
	})
	pipe.Expire(ctx, taskPrefix+taskID, b.resultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return appErr.Wrapf(err, appErr.BrokerError, "store task result failed")
	}
	return nil
}

var _ Broker = (*RedisBroker)(nil)
