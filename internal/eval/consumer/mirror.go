package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"evalhub/internal/common/mq"
	"evalhub/internal/eval/model"
	appErr "evalhub/pkg/errors"
)

// StatusMirror republishes terminal status events to a message queue
// topic for downstream consumers (analytics, notification fan-out).
type StatusMirror struct {
	producer mq.Producer
	topic    string
}

// NewStatusMirror creates a status mirror.
func NewStatusMirror(producer mq.Producer, topic string) *StatusMirror {
	return &StatusMirror{producer: producer, topic: topic}
}

// PublishFinal publishes a terminal status event.
func (m *StatusMirror) PublishFinal(ctx context.Context, event model.StatusEvent) error {
	if m == nil || m.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("status mirror is not configured")
	}
	if m.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("status topic is required")
	}
	if event.EvalID == "" {
		return appErr.ValidationError("eval_id", "required")
	}

	event.Type = model.StatusEventFinal
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.EvalID
	if err := m.producer.Publish(ctx, m.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish status event failed")
	}
	return nil
}
