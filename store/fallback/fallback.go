// Package fallback wraps a primary store.Store with a process-local byte
// cache. When the primary is reachable it is authoritative and successful
// reads/writes mirror into the local cache; when a primary Get fails the local
// copy is served instead, degrading an outage to "warm reads keep working,
// cold reads miss and rebuild" rather than hard-failing every request.
//
// Conditional operations (SetNX, DeleteIfEquals, Incr) and the set index
// never touch the local side: lock correctness and cascade discovery require
// the shared store, so their errors surface unchanged.
package fallback

import (
	"context"
	"time"

	"github.com/yourorg/dollcache/local"
	st "github.com/yourorg/dollcache/store"
)

type Fallback struct {
	primary st.Store
	cache   local.Cache
}

var _ st.Store = (*Fallback)(nil)

type Config struct {
	Primary st.Store
	Local   local.Cache
}

func New(cfg Config) (*Fallback, error) {
	if cfg.Primary == nil || cfg.Local == nil {
		return nil, st.ErrNilStore
	}
	return &Fallback{primary: cfg.Primary, cache: cfg.Local}, nil
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := f.primary.Get(ctx, key)
	if err == nil {
		if ok {
			f.cache.Set(key, v, 0)
		} else {
			// authoritative miss; a stale local copy must not resurrect it
			f.cache.Del(key)
		}
		return v, ok, nil
	}
	if lv, lok := f.cache.Get(key); lok {
		return lv, true, nil
	}
	// degrade to a silent miss: caller rebuilds, nobody hard-fails
	return nil, false, nil
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := f.primary.Set(ctx, key, value, ttl)
	if err == nil {
		f.cache.Set(key, value, ttl)
	}
	return err
}

func (f *Fallback) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return f.primary.SetNX(ctx, key, value, ttl)
}

func (f *Fallback) DeleteIfEquals(ctx context.Context, key string, expected []byte) (int64, error) {
	n, err := f.primary.DeleteIfEquals(ctx, key, expected)
	if err == nil && n > 0 {
		f.cache.Del(key)
	}
	return n, err
}

func (f *Fallback) Delete(ctx context.Context, keys ...string) (int64, error) {
	n, err := f.primary.Delete(ctx, keys...)
	for _, k := range keys {
		f.cache.Del(k)
	}
	return n, err
}

func (f *Fallback) Incr(ctx context.Context, key string) (int64, error) {
	return f.primary.Incr(ctx, key)
}

func (f *Fallback) AddToSet(ctx context.Context, key string, members ...string) error {
	return f.primary.AddToSet(ctx, key, members...)
}

func (f *Fallback) SetMembers(ctx context.Context, key string) ([]string, error) {
	return f.primary.SetMembers(ctx, key)
}

func (f *Fallback) RemoveFromSet(ctx context.Context, key string, members ...string) error {
	return f.primary.RemoveFromSet(ctx, key, members...)
}

func (f *Fallback) Keys(ctx context.Context, pattern string) ([]string, error) {
	return f.primary.Keys(ctx, pattern)
}

func (f *Fallback) Close(ctx context.Context) error {
	cerr := f.cache.Close()
	if err := f.primary.Close(ctx); err != nil {
		return err
	}
	return cerr
}
