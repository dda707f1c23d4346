package dollcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// Another holder owns the lock for resource (expected under load).
	LockContention(resource string)

	// A rebuild ran for key. locked reports whether the caller held the lock;
	// false means the poll bound was exceeded and the unlocked fallback fired.
	StampedeRebuild(key string, locked bool)

	// A waiter exhausted its poll budget without seeing the cache populate.
	StampedeTimeout(key string)

	// A rebuild succeeded but the follow-up cache write failed; the value was
	// still returned to the caller.
	CacheWriteFailed(key string, err error)

	// An entry was deleted by the cache on read.
	// reason ∈ {"value_decode"}
	SelfHeal(storageKey, reason string)

	// A cascading invalidation starting at origin deleted `deleted` entries.
	CascadeInvalidated(origin string, deleted int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LockContention(string)          {}
func (NopHooks) StampedeRebuild(string, bool)   {}
func (NopHooks) StampedeTimeout(string)         {}
func (NopHooks) CacheWriteFailed(string, error) {}
func (NopHooks) SelfHeal(string, string)        {}
func (NopHooks) CascadeInvalidated(string, int) {}
