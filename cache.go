package dollcache

import (
	"context"
	"fmt"
	"time"

	c "github.com/yourorg/dollcache/codec"
	"github.com/yourorg/dollcache/internal/util"
	st "github.com/yourorg/dollcache/store"
)

const (
	defaultEntryTTL = 10 * time.Minute
	defaultLockTTL  = 30 * time.Second
)

type engine[V any] struct {
	ns         string
	store      st.Store
	codec      c.Codec[V]
	log        Logger
	hooks      Hooks
	ttl        *TTLOptimizer
	locks      *LockManager
	defaultTTL time.Duration
	lockTTL    time.Duration
	enabled    bool
}

func newEngine[V any](opts Options[V]) (*engine[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("dollcache: store is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("dollcache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("dollcache: namespace is required")
	}

	e := &engine[V]{
		ns:      opts.Namespace,
		store:   opts.Store,
		codec:   opts.Codec,
		ttl:     opts.TTL,
		locks:   opts.Locks,
		enabled: !opts.Disabled,
	}

	// defaults
	e.log = coalesce[Logger](opts.Logger, NopLogger{})
	e.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	e.defaultTTL = coalesce(opts.DefaultTTL, defaultEntryTTL)
	e.lockTTL = coalesce(opts.LockTTL, defaultLockTTL)

	return e, nil
}

func (e *engine[V]) Enabled() bool { return e.enabled }

func (e *engine[V]) Close(ctx context.Context) error {
	if e.store != nil {
		return e.store.Close(ctx)
	}
	return nil
}

func (e *engine[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !e.enabled {
		return zero, false, nil
	}
	if key == "" {
		return zero, false, ErrEmptyKey
	}
	k := e.entryKey(key)
	raw, ok, err := e.store.Get(ctx, k)
	if err != nil {
		return zero, false, fmt.Errorf("get %q: %w", key, err)
	}
	if !ok {
		return zero, false, nil
	}
	v, err := e.codec.Decode(raw)
	if err != nil {
		// self-heal corrupt entry
		_, _ = e.store.Delete(ctx, k)
		e.hooks.SelfHeal(k, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

func (e *engine[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if !e.enabled {
		return nil
	}
	if key == "" {
		return ErrEmptyKey
	}
	if ttl == 0 {
		ttl = e.defaultTTL
	}
	raw, err := e.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("set %q: encode: %w", key, err)
	}
	if e.ttl != nil {
		ttl = e.ttl.DistributedTTL(ttl)
	}
	if err := e.store.Set(ctx, e.entryKey(key), raw, ttl); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (e *engine[V]) GetOrAssemble(ctx context.Context, key string, plan Plan[V]) (V, error) {
	var zero V
	if key == "" {
		return zero, ErrEmptyKey
	}
	if err := validatePlan(plan); err != nil {
		return zero, err
	}
	if !e.enabled {
		// pass-through: fetch everything, merge, cache nothing
		return e.assembleUncached(ctx, plan)
	}

	if v, ok, err := e.Get(ctx, key); err != nil {
		return zero, err
	} else if ok {
		// hit: the existing entry already encodes prior assembly
		return v, nil
	}

	if e.locks == nil {
		v, err := e.assemble(ctx, key, plan)
		if err != nil {
			return zero, err
		}
		if err := e.Set(ctx, key, v, e.defaultTTL); err != nil {
			// the composite was assembled correctly; only caching it failed
			e.hooks.CacheWriteFailed(e.entryKey(key), err)
			e.log.Warn("assembled composite could not be cached", Fields{"key": key, "err": err})
		}
		return v, nil
	}

	// Single-flight the assembly through the lock manager: concurrent misses
	// on the same composite rebuild once.
	raw, err := e.locks.GetOrRebuild(ctx, e.entryKey(key), func(ctx context.Context) ([]byte, error) {
		v, aerr := e.assemble(ctx, key, plan)
		if aerr != nil {
			return nil, aerr
		}
		return e.codec.Encode(v)
	}, e.defaultTTL, e.lockTTL)
	if err != nil {
		return zero, err
	}
	v, err := e.codec.Decode(raw)
	if err != nil {
		return zero, fmt.Errorf("assemble %q: decode: %w", key, err)
	}
	return v, nil
}

// assemble resolves the plan's fragments (partial-hit: only missing ones are
// fetched), stores fetched fragments, registers one edge per fragment and
// merges. The composite itself is stored by the caller.
func (e *engine[V]) assemble(ctx context.Context, key string, plan Plan[V]) (V, error) {
	var zero V
	parts := make(map[string]V, len(plan.Fragments))
	for _, f := range plan.Fragments {
		v, ok, err := e.Get(ctx, f.Key)
		if err != nil {
			return zero, err
		}
		if !ok {
			v, err = f.Fetch(ctx)
			if err != nil {
				return zero, fmt.Errorf("assemble %q: fragment %q: %w", key, f.Key, err)
			}
			if serr := e.Set(ctx, f.Key, v, e.defaultTTL); serr != nil {
				e.log.Warn("fragment could not be cached", Fields{"key": f.Key, "err": serr})
			}
		}
		parts[f.Key] = v
		if err := e.RegisterDependency(ctx, key, f.Key); err != nil {
			return zero, err
		}
	}
	v, err := plan.Merge(parts)
	if err != nil {
		return zero, fmt.Errorf("assemble %q: merge: %w", key, err)
	}
	return v, nil
}

func (e *engine[V]) assembleUncached(ctx context.Context, plan Plan[V]) (V, error) {
	var zero V
	parts := make(map[string]V, len(plan.Fragments))
	for _, f := range plan.Fragments {
		v, err := f.Fetch(ctx)
		if err != nil {
			return zero, err
		}
		parts[f.Key] = v
	}
	v, err := plan.Merge(parts)
	if err != nil {
		return zero, err
	}
	return v, nil
}

func validatePlan[V any](plan Plan[V]) error {
	if plan.Merge == nil {
		return ErrNilMerge
	}
	for _, f := range plan.Fragments {
		if f.Key == "" {
			return ErrEmptyKey
		}
		if f.Fetch == nil {
			return ErrNilFetch
		}
	}
	return nil
}

func (e *engine[V]) entryKey(key string) string { return util.EntryKey(e.ns, key) }
