package queue_test

import (
	"fmt"
	"testing"

	"evalhub/internal/eval/queue"
)

func TestEnqueueAssignsPositions(t *testing.T) {
	t.Parallel()
	q := queue.New()

	for i, id := range []string{"a", "b", "c"} {
		pos, err := q.Enqueue(queue.Entry{EvalID: id, Language: "python"})
		if err != nil {
			t.Fatalf("enqueue %s failed: %v", id, err)
		}
		if pos != i+1 {
			t.Fatalf("expected position %d for %s, got %d", i+1, id, pos)
		}
	}
}

func TestEnqueueRejectsEmptyAndDuplicate(t *testing.T) {
	t.Parallel()
	q := queue.New()

	if _, err := q.Enqueue(queue.Entry{}); err == nil {
		t.Fatalf("expected error for empty eval id")
	}
	if _, err := q.Enqueue(queue.Entry{EvalID: "a"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := q.Enqueue(queue.Entry{EvalID: "a"}); err == nil {
		t.Fatalf("expected error for duplicate enqueue")
	}
}

func TestDequeueShiftsPositions(t *testing.T) {
	t.Parallel()
	q := queue.New()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue(queue.Entry{EvalID: id}); err != nil {
			t.Fatalf("enqueue %s failed: %v", id, err)
		}
	}

	head := q.Dequeue()
	if head == nil || head.EvalID != "a" {
		t.Fatalf("expected head a, got %+v", head)
	}
	if head.Status != queue.EntryRunning || head.Position != 0 {
		t.Fatalf("expected running head at position 0, got %+v", head)
	}

	b, ok := q.Entry("b")
	if !ok || b.Position != 1 {
		t.Fatalf("expected b shifted to position 1, got %+v", b)
	}
	c, ok := q.Entry("c")
	if !ok || c.Position != 2 {
		t.Fatalf("expected c shifted to position 2, got %+v", c)
	}
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	t.Parallel()
	q := queue.New()
	if entry := q.Dequeue(); entry != nil {
		t.Fatalf("expected nil from empty queue, got %+v", entry)
	}
}

func TestStatusSnapshotInvariant(t *testing.T) {
	t.Parallel()
	q := queue.New()
	for i := 0; i < 5; i++ {
		if _, err := q.Enqueue(queue.Entry{EvalID: fmt.Sprintf("e%d", i)}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	q.Dequeue()
	q.Dequeue()

	status := q.StatusSnapshot()
	if status.Queued != status.QueueLength {
		t.Fatalf("queued %d != queue length %d", status.Queued, status.QueueLength)
	}
	if status.Queued != 3 {
		t.Fatalf("expected 3 queued, got %d", status.Queued)
	}
	if status.Running != 2 {
		t.Fatalf("expected 2 running, got %d", status.Running)
	}
	if status.TotalTasks != 5 {
		t.Fatalf("expected 5 total, got %d", status.TotalTasks)
	}
}

func TestCompleteRemovesEntry(t *testing.T) {
	t.Parallel()
	q := queue.New()
	if _, err := q.Enqueue(queue.Entry{EvalID: "a"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	q.Dequeue()

	if !q.Complete("a") {
		t.Fatalf("expected complete to find entry")
	}
	if _, ok := q.Entry("a"); ok {
		t.Fatalf("expected entry removed")
	}
	if q.Complete("a") {
		t.Fatalf("expected second complete to report not found")
	}
}

func TestFailRemovesQueuedEntryAndShifts(t *testing.T) {
	t.Parallel()
	q := queue.New()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue(queue.Entry{EvalID: id}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	if !q.Fail("b", "executor lost") {
		t.Fatalf("expected fail to find entry")
	}
	c, ok := q.Entry("c")
	if !ok || c.Position != 2 {
		t.Fatalf("expected c shifted to position 2, got %+v", c)
	}
	status := q.StatusSnapshot()
	if status.Queued != 2 || status.TotalTasks != 2 {
		t.Fatalf("unexpected snapshot after fail: %+v", status)
	}
}

func TestClearEmptiesEverything(t *testing.T) {
	t.Parallel()
	q := queue.New()
	for _, id := range []string{"a", "b"} {
		if _, err := q.Enqueue(queue.Entry{EvalID: id}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	q.Dequeue()

	if removed := q.Clear(); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	status := q.StatusSnapshot()
	if status.TotalTasks != 0 || status.Queued != 0 || status.Running != 0 {
		t.Fatalf("expected empty snapshot, got %+v", status)
	}
}
