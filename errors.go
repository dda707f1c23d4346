package dollcache

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyKey rejects operations handed an empty cache key.
	ErrEmptyKey = errors.New("dollcache: empty key")

	// ErrEmptyResource rejects lock operations handed an empty resource name.
	ErrEmptyResource = errors.New("dollcache: empty resource key")

	// ErrNonPositiveTTL rejects TTLs that are zero or negative where a bound
	// is required (lock TTLs, base TTLs).
	ErrNonPositiveTTL = errors.New("dollcache: ttl must be positive")

	// ErrNilRebuild rejects GetOrRebuild without a rebuild function.
	ErrNilRebuild = errors.New("dollcache: rebuild function is required")

	// ErrNilMerge rejects assembly plans without a merge function.
	ErrNilMerge = errors.New("dollcache: plan merge function is required")

	// ErrNilFetch rejects assembly plans containing a fragment without a
	// fetch function.
	ErrNilFetch = errors.New("dollcache: fragment fetch function is required")
)

// CascadeError reports a cascading invalidation that stopped partway. Deleted
// lists the keys removed before the failure so callers never mistake a
// partial cascade for a complete one.
type CascadeError struct {
	Origin  string   // key the invalidation started from
	Key     string   // key whose delete or index lookup failed
	Deleted []string // keys removed before the failure
	Err     error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("invalidate %q: cascade stopped at %q after %d deletes: %v",
		e.Origin, e.Key, len(e.Deleted), e.Err)
}

func (e *CascadeError) Unwrap() error { return e.Err }
