// Package queue provides an embedded FIFO broker used where no external
// broker is desired: an ordered queue plus a mutable registry keyed by
// evaluation id, with at-most-once delivery.
package queue

import (
	"sync"
	"time"

	appErr "evalhub/pkg/errors"
)

// EntryStatus is the registry status of a queue entry.
type EntryStatus string

const (
	EntryQueued  EntryStatus = "queued"
	EntryRunning EntryStatus = "running"
)

// Entry is one queued evaluation with its inlined payload. Position is
// 1-based and recomputed whenever the head is dequeued, so positions
// stay contiguous.
type Entry struct {
	EvalID     string      `json:"eval_id"`
	Code       string      `json:"code,omitempty"`
	Language   string      `json:"language,omitempty"`
	Engine     string      `json:"engine,omitempty"`
	TimeoutSec int         `json:"timeout,omitempty"`
	Status     EntryStatus `json:"status"`
	Position   int         `json:"position"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	Error      string      `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of queue occupancy.
type Status struct {
	Queued      int `json:"queued"`
	Running     int `json:"running"`
	QueueLength int `json:"queue_length"`
	TotalTasks  int `json:"total_tasks"`
}

// Service is an in-process FIFO broker. All mutating operations are
// serialized: the dequeue position-recompute pass must observe a
// consistent queue snapshot. Instances are independent; there is no
// process-wide state.
type Service struct {
	mu       sync.Mutex
	order    []string
	registry map[string]*Entry
}

// New creates an empty queue service.
func New() *Service {
	return &Service{registry: make(map[string]*Entry)}
}

// Enqueue appends an entry to the tail and returns its 1-based position.
func (s *Service) Enqueue(entry Entry) (int, error) {
	if entry.EvalID == "" {
		return 0, appErr.ValidationError("eval_id", "required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.registry[entry.EvalID]; exists {
		return 0, appErr.Newf(appErr.InvalidParams, "evaluation %s is already enqueued", entry.EvalID)
	}

	entry.Status = EntryQueued
	entry.EnqueuedAt = time.Now()
	s.order = append(s.order, entry.EvalID)
	entry.Position = len(s.order)
	s.registry[entry.EvalID] = &entry
	return entry.Position, nil
}

// Dequeue pops the head entry, marks it running and shifts the positions
// of the remainder down by one. Returns nil when the queue is empty.
func (s *Service) Dequeue() *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return nil
	}
	head := s.order[0]
	s.order = s.order[1:]

	entry, ok := s.registry[head]
	if !ok {
		// Registry and queue are mutated together; a missing entry here
		// would indicate a bug, not a race.
		return nil
	}
	entry.Status = EntryRunning
	entry.Position = 0
	s.recomputePositions()

	snapshot := *entry
	return &snapshot
}

// Complete removes a finished entry from the registry entirely. Returns
// false when the evaluation is unknown.
func (s *Service) Complete(evalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(evalID)
}

// Fail removes a failed entry. An unknown evaluation is a soft
// not-found, since it may have been completed by a concurrent call.
func (s *Service) Fail(evalID, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.registry[evalID]; ok {
		entry.Error = errMsg
	}
	return s.remove(evalID)
}

// StatusSnapshot returns current queue occupancy.
func (s *Service) StatusSnapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	running := 0
	for _, entry := range s.registry {
		if entry.Status == EntryRunning {
			running++
		}
	}
	return Status{
		Queued:      len(s.order),
		Running:     running,
		QueueLength: len(s.order),
		TotalTasks:  len(s.registry),
	}
}

// Entry returns a copy of the registry entry for one evaluation.
func (s *Service) Entry(evalID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.registry[evalID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Clear empties both the queue and the registry and returns the number
// of entries removed. Administrative operation, not used in normal flow.
func (s *Service) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.registry)
	s.order = nil
	s.registry = make(map[string]*Entry)
	return removed
}

// remove drops the entry from registry and, if still queued, from the
// queue order. Caller holds the lock.
func (s *Service) remove(evalID string) bool {
	if _, ok := s.registry[evalID]; !ok {
		return false
	}
	delete(s.registry, evalID)
	for i, id := range s.order {
		if id == evalID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			s.recomputePositions()
			break
		}
	}
	return true
}

// recomputePositions reassigns contiguous 1-based positions to every
// queued entry. Caller holds the lock.
func (s *Service) recomputePositions() {
	for i, id := range s.order {
		if entry, ok := s.registry[id]; ok {
			entry.Position = i + 1
		}
	}
}
