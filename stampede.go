package dollcache

import (
	"context"
	"fmt"
	"time"
)

// RebuildFunc recomputes an expensive value (a database query, a report
// render). It is caller-supplied and may be slow; errors propagate to the
// GetOrRebuild caller.
type RebuildFunc func(ctx context.Context) ([]byte, error)

// GetOrRebuild is the stampede-prevention read path:
//
//  1. Read cacheKey. On hit, return immediately - no locking.
//  2. On miss, try the lock. The winner double-checks the cache (another
//     holder may have just finished), rebuilds, writes with cacheTTL and
//     returns; the lock release is unconditional even when rebuild fails.
//  3. Losers poll the cache for at most MaxRetries × RetryDelay. Past that
//     bound they rebuild without the lock - one duplicate rebuild in exchange
//     for bounded latency.
//
// A failed cache write after a successful rebuild still returns the value;
// the write failure is reported through hooks and the log, never as a false
// failure of the rebuild.
func (m *LockManager) GetOrRebuild(ctx context.Context, cacheKey string, rebuild RebuildFunc, cacheTTL, lockTTL time.Duration) ([]byte, error) {
	if cacheKey == "" {
		return nil, ErrEmptyKey
	}
	if rebuild == nil {
		return nil, ErrNilRebuild
	}
	if cacheTTL <= 0 || lockTTL <= 0 {
		return nil, fmt.Errorf("get-or-rebuild %q: %w", cacheKey, ErrNonPositiveTTL)
	}

	// Fast path.
	if v, ok, err := m.store.Get(ctx, cacheKey); err != nil {
		return nil, fmt.Errorf("get-or-rebuild read %q: %w", cacheKey, err)
	} else if ok {
		return v, nil
	}

	h, err := m.Acquire(ctx, cacheKey, lockTTL)
	if err != nil {
		return nil, err
	}
	if h != nil {
		return m.rebuildLocked(ctx, cacheKey, rebuild, cacheTTL, h)
	}
	return m.waitForRebuild(ctx, cacheKey, rebuild, cacheTTL)
}

func (m *LockManager) rebuildLocked(ctx context.Context, cacheKey string, rebuild RebuildFunc, cacheTTL time.Duration, h *LockHandle) ([]byte, error) {
	// Unconditional release: rebuild errors must propagate with the lock gone.
	defer func() {
		if _, rerr := m.Release(ctx, h); rerr != nil {
			m.log.Warn("lock release failed after rebuild", Fields{"key": cacheKey, "err": rerr})
		}
	}()

	// Double-check: a previous holder may have populated the cache between
	// our miss and our acquire.
	if v, ok, gerr := m.store.Get(ctx, cacheKey); gerr != nil {
		return nil, fmt.Errorf("get-or-rebuild read %q: %w", cacheKey, gerr)
	} else if ok {
		return v, nil
	}

	m.hooks.StampedeRebuild(cacheKey, true)
	v, err := rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("get-or-rebuild %q: rebuild: %w", cacheKey, err)
	}
	m.writeBack(ctx, cacheKey, v, cacheTTL)
	return v, nil
}

func (m *LockManager) waitForRebuild(ctx context.Context, cacheKey string, rebuild RebuildFunc, cacheTTL time.Duration) ([]byte, error) {
	for i := 0; i < m.maxRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.retryDelay):
		}
		if v, ok, err := m.store.Get(ctx, cacheKey); err != nil {
			return nil, fmt.Errorf("get-or-rebuild poll %q: %w", cacheKey, err)
		} else if ok {
			return v, nil
		}
	}

	// Poll budget exhausted: rebuild without the lock rather than block the
	// caller indefinitely.
	m.hooks.StampedeTimeout(cacheKey)
	m.hooks.StampedeRebuild(cacheKey, false)
	m.log.Debug("stampede wait timed out; rebuilding unlocked", Fields{"key": cacheKey})
	v, err := rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("get-or-rebuild %q: fallback rebuild: %w", cacheKey, err)
	}
	m.writeBack(ctx, cacheKey, v, cacheTTL)
	return v, nil
}

func (m *LockManager) writeBack(ctx context.Context, cacheKey string, v []byte, cacheTTL time.Duration) {
	ttl := cacheTTL
	if m.ttl != nil {
		ttl = m.ttl.DistributedTTL(cacheTTL)
	}
	if err := m.store.Set(ctx, cacheKey, v, ttl); err != nil {
		m.hooks.CacheWriteFailed(cacheKey, err)
		m.log.Warn("rebuilt value could not be cached", Fields{"key": cacheKey, "err": err})
	}
}
