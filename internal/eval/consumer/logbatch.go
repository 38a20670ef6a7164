package consumer

import (
	"context"
	"strings"
	"sync"
	"time"

	"evalhub/internal/common/cache"
	"evalhub/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 5 * time.Second
	defaultTailTTL    = 5 * time.Minute
	tailMaxBytes      = 8 << 10
)

func logTailKey(evalID string) string {
	return "eval:" + evalID + ":logs:tail"
}

// LogSink receives flushed log content. The storage API client satisfies
// it.
type LogSink interface {
	AppendLogs(ctx context.Context, evalID, content string) error
}

// logBuffer holds fragments accumulated between flushes plus at most one
// pending delayed-flush timer.
type logBuffer struct {
	fragments []string
	timer     *time.Timer
}

// LogBatcher batches high-volume log fragments per evaluation. A flush
// fires when the buffer reaches the size threshold, when a fragment is
// marked final, or when the delay timer expires. Every flush
// path atomically takes both the fragments and the pending timer, so a
// timer can never flush a buffer that was already flushed explicitly.
type LogBatcher struct {
	mu      sync.Mutex
	buffers map[string]*logBuffer

	sink       LogSink
	cache      cache.Cache
	batchSize  int
	flushDelay time.Duration
	tailTTL    time.Duration
}

// LogBatcherConfig holds batching settings; zero values pick defaults.
type LogBatcherConfig struct {
	BatchSize  int
	FlushDelay time.Duration
	TailTTL    time.Duration
}

// NewLogBatcher creates a log batcher. cacheClient is optional; when set,
// flushed content is mirrored into a short-TTL tail entry for fast reads.
func NewLogBatcher(sink LogSink, cacheClient cache.Cache, cfg LogBatcherConfig) *LogBatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = defaultFlushDelay
	}
	if cfg.TailTTL <= 0 {
		cfg.TailTTL = defaultTailTTL
	}
	return &LogBatcher{
		buffers:    make(map[string]*logBuffer),
		sink:       sink,
		cache:      cacheClient,
		batchSize:  cfg.BatchSize,
		flushDelay: cfg.FlushDelay,
		tailTTL:    cfg.TailTTL,
	}
}

// Append adds one fragment. It flushes immediately when the buffer
// reaches the size threshold or the fragment is final; otherwise it
// schedules a delayed flush if none is pending.
func (b *LogBatcher) Append(ctx context.Context, evalID, content string, final bool) {
	b.mu.Lock()
	buf, ok := b.buffers[evalID]
	if !ok {
		buf = &logBuffer{}
		b.buffers[evalID] = buf
	}
	buf.fragments = append(buf.fragments, content)

	if len(buf.fragments) >= b.batchSize || final {
		fragments := b.takeLocked(evalID)
		b.mu.Unlock()
		b.write(ctx, evalID, fragments)
		return
	}

	if buf.timer == nil {
		buf.timer = time.AfterFunc(b.flushDelay, func() {
			b.Flush(context.Background(), evalID)
		})
	}
	b.mu.Unlock()
}

// Flush forces any buffered fragments out and cancels the pending timer.
// A no-op when the buffer is empty.
func (b *LogBatcher) Flush(ctx context.Context, evalID string) {
	b.mu.Lock()
	fragments := b.takeLocked(evalID)
	b.mu.Unlock()
	if len(fragments) == 0 {
		return
	}
	b.write(ctx, evalID, fragments)
}

// Pending returns the number of buffered fragments for an evaluation.
func (b *LogBatcher) Pending(evalID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[evalID]; ok {
		return len(buf.fragments)
	}
	return 0
}

// takeLocked removes and returns the buffered fragments and stops any
// pending timer. Caller holds the lock.
func (b *LogBatcher) takeLocked(evalID string) []string {
	buf, ok := b.buffers[evalID]
	if !ok {
		return nil
	}
	if buf.timer != nil {
		buf.timer.Stop()
	}
	delete(b.buffers, evalID)
	return buf.fragments
}

// write appends the joined fragments to stored logs and mirrors the tail
// into the cache. Failures are logged, not retried: a lost flush is an
// accepted gap, surfaced at error level for alerting.
func (b *LogBatcher) write(ctx context.Context, evalID string, fragments []string) {
	if len(fragments) == 0 {
		return
	}
	content := strings.Join(fragments, "\n")
	if err := b.sink.AppendLogs(ctx, evalID, content); err != nil {
		logger.Error(ctx, "log flush failed, fragments dropped",
			zap.String("eval_id", evalID),
			zap.Int("fragments", len(fragments)),
			zap.Error(err))
		return
	}
	b.mirrorTail(ctx, evalID, content)
}

// mirrorTail keeps the recent combined tail in a short-TTL cache entry.
func (b *LogBatcher) mirrorTail(ctx context.Context, evalID, content string) {
	if b.cache == nil {
		return
	}
	key := logTailKey(evalID)
	tail, err := b.cache.Get(ctx, key)
	if err == nil && tail != "" {
		content = tail + "\n" + content
	}
	if len(content) > tailMaxBytes {
		content = content[len(content)-tailMaxBytes:]
	}
	if err := b.cache.Set(ctx, key, content, b.tailTTL); err != nil {
		logger.Warn(ctx, "mirror log tail failed",
			zap.String("eval_id", evalID), zap.Error(err))
	}
}
