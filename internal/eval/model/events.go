package model

import "strings"

// Pub/sub channels carrying evaluation lifecycle and log events.
const (
	ChannelQueued    = "evaluation:queued"
	ChannelRunning   = "evaluation:running"
	ChannelCompleted = "evaluation:completed"
	ChannelFailed    = "evaluation:failed"

	// ChannelConfirmed carries confirmations that a lifecycle event has
	// been persisted to storage.
	ChannelConfirmed = "evaluation:confirmed"

	// LogChannelPattern matches every per-evaluation log channel.
	LogChannelPattern = "evaluation:*:logs"
)

// LogChannel returns the log channel name for one evaluation.
func LogChannel(evalID string) string {
	return "evaluation:" + evalID + ":logs"
}

// EvalIDFromLogChannel extracts the evaluation id from a log channel name.
// Returns an empty string if the channel does not match the pattern.
func EvalIDFromLogChannel(channel string) string {
	if !strings.HasPrefix(channel, "evaluation:") {
		return ""
	}
	rest := strings.TrimPrefix(channel, "evaluation:")
	if !strings.HasSuffix(rest, ":logs") {
		return ""
	}
	id := strings.TrimSuffix(rest, ":logs")
	if id == "" || strings.Contains(id, ":") {
		return ""
	}
	return id
}

// LifecycleEvent is the payload published on lifecycle channels.
// Fields beyond EvalID are optional and depend on the channel.
type LifecycleEvent struct {
	EvalID      string            `json:"eval_id"`
	Code        string            `json:"code,omitempty"`
	Language    string            `json:"language,omitempty"`
	ExecutorID  string            `json:"executor_id,omitempty"`
	ContainerID string            `json:"container_id,omitempty"`
	TimeoutSec  int               `json:"timeout,omitempty"`
	Output      string            `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LogEvent is the payload published on per-evaluation log channels.
type LogEvent struct {
	Content string `json:"content"`
	IsFinal bool   `json:"is_final,omitempty"`
}

// ConfirmationEvent is published after a lifecycle event has been
// applied to storage.
type ConfirmationEvent struct {
	EvalID string `json:"eval_id"`
	Status Status `json:"status"`
}

// StatusEventType identifies the kind of a mirrored status event.
type StatusEventType string

// StatusEventFinal marks a terminal status event.
const StatusEventFinal StatusEventType = "final"

// StatusEvent is the terminal status record mirrored to the message queue
// for downstream consumers.
type StatusEvent struct {
	Type      StatusEventType `json:"type"`
	EvalID    string          `json:"eval_id"`
	Status    Status          `json:"status"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	RuntimeMS *int64          `json:"runtime_ms,omitempty"`
	CreatedAt int64           `json:"created_at"`
}
