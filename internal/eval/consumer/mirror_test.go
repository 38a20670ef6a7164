package consumer_test

import (
	"context"
	"encoding/json"
	"testing"

	"evalhub/internal/common/mq"
	"evalhub/internal/eval/consumer"
	"evalhub/internal/eval/model"
)

type fakeProducer struct {
	topics   []string
	messages []*mq.Message
	err      error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeProducer) Ping(ctx context.Context) error { return nil }
func (f *fakeProducer) Close() error                   { return nil }

func TestPublishFinal(t *testing.T) {
	t.Parallel()
	producer := &fakeProducer{}
	mirror := consumer.NewStatusMirror(producer, "evaluation-final")

	err := mirror.PublishFinal(context.Background(), model.StatusEvent{
		EvalID: "e1",
		Status: model.StatusCompleted,
		Output: "42",
	})
	if err != nil {
		t.Fatalf("publish final failed: %v", err)
	}
	if len(producer.messages) != 1 || producer.topics[0] != "evaluation-final" {
		t.Fatalf("expected one message on evaluation-final, got %v", producer.topics)
	}
	msg := producer.messages[0]
	if msg.ID != "e1" {
		t.Fatalf("expected message keyed by eval id, got %s", msg.ID)
	}

	var event model.StatusEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode event failed: %v", err)
	}
	if event.Type != model.StatusEventFinal {
		t.Fatalf("expected final event type, got %s", event.Type)
	}
	if event.Status != model.StatusCompleted || event.Output != "42" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.CreatedAt == 0 {
		t.Fatalf("expected created_at stamped")
	}
}

func TestPublishFinalRequiresEvalID(t *testing.T) {
	t.Parallel()
	mirror := consumer.NewStatusMirror(&fakeProducer{}, "evaluation-final")
	if err := mirror.PublishFinal(context.Background(), model.StatusEvent{}); err == nil {
		t.Fatalf("expected error for missing eval id")
	}
}

func TestPublishFinalWithoutProducer(t *testing.T) {
	t.Parallel()
	mirror := consumer.NewStatusMirror(nil, "evaluation-final")
	if err := mirror.PublishFinal(context.Background(), model.StatusEvent{EvalID: "e1"}); err == nil {
		t.Fatalf("expected error without producer")
	}
}
