package cache

import (
	"context"
	"time"
)

// Cache defines the unified interface for key-value and pub/sub operations.
// This abstraction allows switching between different implementations
// (Redis, local memory) without changing business logic.
type Cache interface {
	BasicOps
	SetOps
	PubSubOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key.
	// Returns an empty string if the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Exists checks if one or more keys exist
	// Returns the number of keys that exist
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Expire sets a timeout on a key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time to live of a key
	// Returns -1 if the key exists but has no expiration
	// Returns -2 if the key does not exist
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// SetOps defines set operations
type SetOps interface {
	// SAdd adds one or more members to a set
	SAdd(ctx context.Context, key string, members ...interface{}) error

	// SRem removes one or more members from a set
	SRem(ctx context.Context, key string, members ...interface{}) error

	// SMembers returns all members of a set
	SMembers(ctx context.Context, key string) ([]string, error)

	// SIsMember checks if a value is a member of a set
	SIsMember(ctx context.Context, key string, member interface{}) (bool, error)
}

// PubSubOps defines publish/subscribe operations
type PubSubOps interface {
	// Publish publishes a payload to the given channel
	Publish(ctx context.Context, channel string, payload interface{}) error

	// Subscribe subscribes to exact channels and glob-style patterns.
	// Either list may be empty. The returned subscription must be closed
	// by the caller.
	Subscribe(ctx context.Context, channels, patterns []string) (Subscription, error)
}

// Message is one delivered pub/sub message.
// Pattern is set only for pattern-matched deliveries.
type Message struct {
	Channel string
	Pattern string
	Payload string
}

// Subscription is an active pub/sub subscription
type Subscription interface {
	// Messages returns the delivery channel. It is closed when the
	// subscription is closed or the connection is lost.
	Messages() <-chan Message

	// Close unsubscribes and releases the connection
	Close() error
}
