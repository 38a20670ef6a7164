package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"evalhub/internal/common/cache"
	"evalhub/internal/eval/model"
	appErr "evalhub/pkg/errors"
)

const (
	runningSetKey = "running_evaluations"

	// DefaultLeaseBuffer is added to the evaluation timeout so the lease
	// outlives a healthy run but still self-expires after a crash.
	DefaultLeaseBuffer = 60 * time.Second
)

func leaseKey(evalID string) string {
	return "eval:" + evalID + ":running"
}

// LeaseStore maintains the ephemeral running markers: a TTL'd lease key
// per evaluation and a companion set, always mutated together.
type LeaseStore struct {
	cache  cache.Cache
	buffer time.Duration
}

// NewLeaseStore creates a lease store with the given TTL buffer.
func NewLeaseStore(cacheClient cache.Cache, buffer time.Duration) *LeaseStore {
	if buffer <= 0 {
		buffer = DefaultLeaseBuffer
	}
	return &LeaseStore{cache: cacheClient, buffer: buffer}
}

// Mark records that the evaluation is actively executing. The lease TTL
// is the evaluation timeout plus the buffer.
func (s *LeaseStore) Mark(ctx context.Context, evalID string, lease model.RunningLease) error {
	data, err := json.Marshal(lease)
	if err != nil {
		return fmt.Errorf("marshal running lease failed: %w", err)
	}
	ttl := time.Duration(lease.TimeoutSec)*time.Second + s.buffer
	if err := s.cache.Set(ctx, leaseKey(evalID), string(data), ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store running lease failed")
	}
	if err := s.cache.SAdd(ctx, runningSetKey, evalID); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "add to running set failed")
	}
	return nil
}

// Clear removes the lease and the set membership. Both removals are
// attempted even if the first fails.
func (s *LeaseStore) Clear(ctx context.Context, evalID string) error {
	delErr := s.cache.Del(ctx, leaseKey(evalID))
	remErr := s.cache.SRem(ctx, runningSetKey, evalID)
	if delErr != nil {
		return appErr.Wrapf(delErr, appErr.CacheError, "delete running lease failed")
	}
	if remErr != nil {
		return appErr.Wrapf(remErr, appErr.CacheError, "remove from running set failed")
	}
	return nil
}

// Get returns the lease for an evaluation, or nil when absent.
func (s *LeaseStore) Get(ctx context.Context, evalID string) (*model.RunningLease, error) {
	data, err := s.cache.Get(ctx, leaseKey(evalID))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "get running lease failed")
	}
	if data == "" {
		return nil, nil
	}
	var lease model.RunningLease
	if err := json.Unmarshal([]byte(data), &lease); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "decode running lease failed")
	}
	return &lease, nil
}

// Running lists evaluations currently marked as executing.
func (s *LeaseStore) Running(ctx context.Context) ([]string, error) {
	members, err := s.cache.SMembers(ctx, runningSetKey)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "list running evaluations failed")
	}
	return members, nil
}
