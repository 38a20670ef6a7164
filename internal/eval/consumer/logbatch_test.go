package consumer_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"evalhub/internal/common/cache"
	"evalhub/internal/eval/consumer"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSink struct {
	mu     sync.Mutex
	writes []string
	err    error
}

func (s *countingSink) AppendLogs(ctx context.Context, evalID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, content)
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func TestAppendFlushesAtBatchSize(t *testing.T) {
	t.Parallel()
	sink := &countingSink{}
	b := consumer.NewLogBatcher(sink, nil, consumer.LogBatcherConfig{
		BatchSize:  100,
		FlushDelay: time.Hour,
	})

	for i := 0; i < 150; i++ {
		b.Append(context.Background(), "e1", fmt.Sprintf("line %d", i), false)
	}
	if sink.count() != 1 {
		t.Fatalf("expected one flush at batch size, got %d", sink.count())
	}
	if got := len(strings.Split(sink.writes[0], "\n")); got != 100 {
		t.Fatalf("expected 100 fragments in first flush, got %d", got)
	}
	if b.Pending("e1") != 50 {
		t.Fatalf("expected 50 pending fragments, got %d", b.Pending("e1"))
	}
}

func TestAppendFinalFlushesImmediately(t *testing.T) {
	t.Parallel()
	sink := &countingSink{}
	b := consumer.NewLogBatcher(sink, nil, consumer.LogBatcherConfig{
		BatchSize:  100,
		FlushDelay: time.Hour,
	})

	b.Append(context.Background(), "e1", "line 1", false)
	b.Append(context.Background(), "e1", "line 2", true)

	if sink.count() != 1 {
		t.Fatalf("expected one flush, got %d", sink.count())
	}
	if sink.writes[0] != "line 1\nline 2" {
		t.Fatalf("unexpected flushed content: %q", sink.writes[0])
	}
	if b.Pending("e1") != 0 {
		t.Fatalf("expected empty buffer after final flush, got %d", b.Pending("e1"))
	}
}

func TestDelayedFlushFires(t *testing.T) {
	t.Parallel()
	sink := &countingSink{}
	b := consumer.NewLogBatcher(sink, nil, consumer.LogBatcherConfig{
		BatchSize:  100,
		FlushDelay: 50 * time.Millisecond,
	})

	b.Append(context.Background(), "e1", "lonely line", false)

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("expected delayed flush, got %d writes", sink.count())
	}
	if b.Pending("e1") != 0 {
		t.Fatalf("expected empty buffer after delayed flush")
	}
}

func TestExplicitFlushCancelsTimer(t *testing.T) {
	t.Parallel()
	sink := &countingSink{}
	b := consumer.NewLogBatcher(sink, nil, consumer.LogBatcherConfig{
		BatchSize:  100,
		FlushDelay: 50 * time.Millisecond,
	})

	b.Append(context.Background(), "e1", "line", false)
	b.Flush(context.Background(), "e1")
	if sink.count() != 1 {
		t.Fatalf("expected explicit flush, got %d", sink.count())
	}

	// Give a stale timer a chance to misfire.
	time.Sleep(150 * time.Millisecond)
	if sink.count() != 1 {
		t.Fatalf("expected no duplicate flush from timer, got %d", sink.count())
	}
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	t.Parallel()
	sink := &countingSink{}
	b := consumer.NewLogBatcher(sink, nil, consumer.LogBatcherConfig{})

	b.Flush(context.Background(), "never-seen")
	if sink.count() != 0 {
		t.Fatalf("expected no writes, got %d", sink.count())
	}
}

func TestSinkFailureDropsFragments(t *testing.T) {
	t.Parallel()
	sink := &countingSink{err: fmt.Errorf("storage api down")}
	b := consumer.NewLogBatcher(sink, nil, consumer.LogBatcherConfig{
		BatchSize:  100,
		FlushDelay: time.Hour,
	})

	b.Append(context.Background(), "e1", "line", true)
	if b.Pending("e1") != 0 {
		t.Fatalf("expected fragments dropped after sink failure, got %d", b.Pending("e1"))
	}
}

func TestMirrorTailTrimsAndExpires(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("init cache failed: %v", err)
	}

	sink := &countingSink{}
	b := consumer.NewLogBatcher(sink, redisCache, consumer.LogBatcherConfig{
		BatchSize:  100,
		FlushDelay: time.Hour,
		TailTTL:    time.Minute,
	})

	b.Append(context.Background(), "e1", "first chunk", true)
	b.Append(context.Background(), "e1", strings.Repeat("x", 10<<10), true)

	tail, err := mr.Get("eval:e1:logs:tail")
	if err != nil {
		t.Fatalf("expected tail mirrored: %v", err)
	}
	if len(tail) > 8<<10 {
		t.Fatalf("expected tail capped at 8KiB, got %d bytes", len(tail))
	}
	if strings.Contains(tail, "first chunk") {
		t.Fatalf("expected oldest content trimmed from tail")
	}
	if mr.TTL("eval:e1:logs:tail") <= 0 {
		t.Fatalf("expected tail key to carry a TTL")
	}
}
