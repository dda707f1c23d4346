// Package store defines the key-value store abstraction used by dollcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// Important: the keyspaces "lock:", "entry:<ns>:" and "deps:" are owned by
// dollcache. External code MUST NOT write values under these prefixes.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNilStore is returned by constructors handed a nil Store or wrapper part.
var ErrNilStore = errors.New("store: nil store")

// Store is a Redis-compatible key-value store with TTLs, the conditional
// operations the lock manager needs, and set-valued entries for the dependency
// index. Must be safe for concurrent use.
//
// TTL semantics: ttl <= 0 means "no expiry". Sub-second durations must be
// honored with millisecond precision.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (unconditional upsert).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only when the key is absent. The check and the write
	// are a single atomic operation. Returns whether the value was set.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// DeleteIfEquals removes the key only when its current value equals
	// expected. Compare and delete are a single atomic operation (one round
	// trip). Returns the number of keys removed (0 or 1).
	DeleteIfEquals(ctx context.Context, key string, expected []byte) (int64, error)

	// Delete removes keys unconditionally and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Incr atomically increments the integer at key and returns the new value.
	// A missing key counts from zero.
	Incr(ctx context.Context, key string) (int64, error)

	// AddToSet adds members to the set-valued entry at key. Duplicates are
	// ignored (sets, not lists).
	AddToSet(ctx context.Context, key string, members ...string) error

	// SetMembers returns all members of the set at key; empty slice on a
	// missing key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// RemoveFromSet removes members from the set at key (best-effort).
	RemoveFromSet(ctx context.Context, key string, members ...string) error

	// Keys returns the keys matching a glob-style pattern. Potentially a full
	// scan of the keyspace; demo and benchmark paths only, never hot paths.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
