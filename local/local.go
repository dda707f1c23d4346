// Package local defines the process-local byte cache used by the fallback
// store. Implementations hold bytes in this process only; losing them loses
// warm reads, never correctness.
package local

import "time"

// Cache is a minimal byte cache. Must be safe for concurrent use and
// byte-for-byte transparent like store.Store.
type Cache interface {
	// Get returns (value, true) on hit; (nil, false) on miss.
	Get(key string) ([]byte, bool)

	// Set stores value with the given TTL. Implementations without per-entry
	// TTLs may approximate with a global life window.
	Set(key string, value []byte, ttl time.Duration)

	// Del removes a key (best-effort).
	Del(key string)

	// Close releases resources.
	Close() error
}
