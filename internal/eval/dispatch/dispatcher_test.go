package dispatch_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"evalhub/internal/common/cache"
	"evalhub/internal/common/storage"
	"evalhub/internal/eval/broker"
	"evalhub/internal/eval/dispatch"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeBroker struct {
	submitted []submittedTask
	submitErr error
	nextID    int

	states    map[string]broker.TaskState
	stateErr  error
	revoked   []revokeCall
	revokeErr error
	results   map[string]*broker.TaskResult
}

type submittedTask struct {
	lane    string
	payload broker.TaskPayload
}

type revokeCall struct {
	taskID    string
	terminate bool
}

func (f *fakeBroker) Submit(ctx context.Context, lane string, payload broker.TaskPayload) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextID++
	f.submitted = append(f.submitted, submittedTask{lane: lane, payload: payload})
	return fmt.Sprintf("task-%d", f.nextID), nil
}

func (f *fakeBroker) State(ctx context.Context, taskID string) (broker.TaskState, error) {
	if f.stateErr != nil {
		return broker.StateUnknown, f.stateErr
	}
	if state, ok := f.states[taskID]; ok {
		return state, nil
	}
	return broker.StateUnknown, nil
}

func (f *fakeBroker) Revoke(ctx context.Context, taskID string, terminate bool) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, revokeCall{taskID: taskID, terminate: terminate})
	return nil
}

func (f *fakeBroker) Result(ctx context.Context, taskID string) (*broker.TaskResult, error) {
	return f.results[taskID], nil
}

func testMapper(t *testing.T) (*dispatch.TaskMapper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("init cache failed: %v", err)
	}
	return dispatch.NewTaskMapper(redisCache, time.Hour), mr
}

func TestSubmitDispatchesToEvaluationLane(t *testing.T) {
	t.Parallel()
	fb := &fakeBroker{}
	mapper, mr := testMapper(t)
	d, err := dispatch.NewDispatcher(dispatch.Config{Broker: fb, Mapper: mapper})
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	taskID, dispatched := d.Submit(context.Background(), dispatch.SubmitInput{
		EvalID:   "e1",
		Code:     "print(1)",
		Language: "python",
	})
	if !dispatched {
		t.Fatalf("expected dispatch to succeed")
	}
	if taskID == "" {
		t.Fatalf("expected task id")
	}
	if len(fb.submitted) != 1 || fb.submitted[0].lane != broker.LaneEvaluation {
		t.Fatalf("expected submission on evaluation lane, got %+v", fb.submitted)
	}
	if got, _ := mr.Get("task_mapping:e1"); got != taskID {
		t.Fatalf("expected task mapping recorded, got %q", got)
	}
	if got, _ := mr.Get("eval_mapping:" + taskID); got != "e1" {
		t.Fatalf("expected eval mapping recorded, got %q", got)
	}
}

func TestSubmitPriorityUsesHighPriorityLane(t *testing.T) {
	t.Parallel()
	fb := &fakeBroker{}
	mapper, _ := testMapper(t)
	d, err := dispatch.NewDispatcher(dispatch.Config{Broker: fb, Mapper: mapper})
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	if _, dispatched := d.Submit(context.Background(), dispatch.SubmitInput{
		EvalID:   "e1",
		Code:     "x",
		Language: "python",
		Priority: true,
	}); !dispatched {
		t.Fatalf("expected dispatch to succeed")
	}
	if fb.submitted[0].lane != broker.LaneHighPriority {
		t.Fatalf("expected high priority lane, got %s", fb.submitted[0].lane)
	}
}

func TestSubmitWithoutBrokerReportsNotDispatched(t *testing.T) {
	t.Parallel()
	mapper, _ := testMapper(t)
	d, err := dispatch.NewDispatcher(dispatch.Config{Mapper: mapper})
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	taskID, dispatched := d.Submit(context.Background(), dispatch.SubmitInput{EvalID: "e1"})
	if dispatched || taskID != "" {
		t.Fatalf("expected not dispatched, got taskID=%q dispatched=%v", taskID, dispatched)
	}
}

func TestSubmitBrokerFailureReportsNotDispatched(t *testing.T) {
	t.Parallel()
	fb := &fakeBroker{submitErr: fmt.Errorf("broker down")}
	mapper, mr := testMapper(t)
	d, err := dispatch.NewDispatcher(dispatch.Config{Broker: fb, Mapper: mapper})
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	_, dispatched := d.Submit(context.Background(), dispatch.SubmitInput{EvalID: "e1"})
	if dispatched {
		t.Fatalf("expected not dispatched on broker failure")
	}
	if mr.Exists("task_mapping:e1") {
		t.Fatalf("expected no mapping after failed submission")
	}
}

type fakeObjectStorage struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeObjectStorage) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[bucket+"/"+key] = data
	return "etag", nil
}

func (f *fakeObjectStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeObjectStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	return storage.ObjectStat{}, fmt.Errorf("not implemented")
}

func TestSubmitOffloadsOversizedSource(t *testing.T) {
	t.Parallel()
	fb := &fakeBroker{}
	mapper, _ := testMapper(t)
	objStore := &fakeObjectStorage{}
	d, err := dispatch.NewDispatcher(dispatch.Config{
		Broker:          fb,
		Mapper:          mapper,
		Storage:         objStore,
		SourceBucket:    "sources-bucket",
		InlineCodeLimit: 16,
	})
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	code := "a very long source body that exceeds the inline limit"
	if _, dispatched := d.Submit(context.Background(), dispatch.SubmitInput{
		EvalID:   "e1",
		Code:     code,
		Language: "python",
	}); !dispatched {
		t.Fatalf("expected dispatch to succeed")
	}

	payload := fb.submitted[0].payload
	if payload.Code != "" {
		t.Fatalf("expected inlined code cleared after offload")
	}
	if payload.CodeRef != "sources/e1.src" {
		t.Fatalf("unexpected code ref: %s", payload.CodeRef)
	}
	if string(objStore.objects["sources-bucket/sources/e1.src"]) != code {
		t.Fatalf("expected source stored in object storage")
	}
}

func TestSubmitOffloadFailureFallsBackToInline(t *testing.T) {
	t.Parallel()
	fb := &fakeBroker{}
	mapper, _ := testMapper(t)
	objStore := &fakeObjectStorage{putErr: fmt.Errorf("bucket unavailable")}
	d, err := dispatch.NewDispatcher(dispatch.Config{
		Broker:          fb,
		Mapper:          mapper,
		Storage:         objStore,
		SourceBucket:    "sources-bucket",
		InlineCodeLimit: 8,
	})
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	code := "source body longer than eight bytes"
	if _, dispatched := d.Submit(context.Background(), dispatch.SubmitInput{
		EvalID: "e1",
		Code:   code,
	}); !dispatched {
		t.Fatalf("expected dispatch to succeed despite offload failure")
	}
	payload := fb.submitted[0].payload
	if payload.Code != code || payload.CodeRef != "" {
		t.Fatalf("expected inline fallback, got code=%q ref=%q", payload.Code, payload.CodeRef)
	}
}

func TestLane(t *testing.T) {
	t.Parallel()
	if dispatch.Lane(true) != broker.LaneHighPriority {
		t.Fatalf("expected high priority lane")
	}
	if dispatch.Lane(false) != broker.LaneEvaluation {
		t.Fatalf("expected evaluation lane")
	}
}
