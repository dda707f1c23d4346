package dollcache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/dollcache/internal/util"
	st "github.com/yourorg/dollcache/store"
)

const (
	defaultMaxRetries = 10
	defaultRetryDelay = 50 * time.Millisecond
)

// LockManager provides mutual exclusion across concurrent callers contending
// to rebuild the same expensive value. Locks are plain store entries under
// "lock:<resource>" holding a unique owner token with a bounded TTL, so they
// self-heal even if a holder crashes without releasing.
type LockManager struct {
	store      st.Store
	log        Logger
	hooks      Hooks
	ttl        *TTLOptimizer // optional; jitters cache writes in GetOrRebuild
	maxRetries int
	retryDelay time.Duration
}

// LockOptions tune the lock manager. Only Store-adjacent behavior lives here;
// per-acquire TTLs are arguments, not configuration.
type LockOptions struct {
	Logger Logger
	Hooks  Hooks

	// TTL, when set, de-clusters the expirations of entries written by
	// GetOrRebuild.
	TTL *TTLOptimizer

	// MaxRetries bounds how many times a non-holder polls the cache while
	// another caller rebuilds. 0 => 10.
	MaxRetries int

	// RetryDelay is the pause between polls. 0 => 50ms.
	RetryDelay time.Duration
}

// LockHandle proves ownership of an acquired lock. Only the holder of the
// matching token can release it.
type LockHandle struct {
	Resource  string
	Token     string
	ExpiresAt time.Time
}

// LockStatus is diagnostic output for demo/tooling. Not for correctness
// decisions: the state may change the moment it is read.
type LockStatus struct {
	Resource string
	Locked   bool
	Owned    bool // token supplied by the caller matches the stored one
}

func NewLockManager(s st.Store, opts LockOptions) (*LockManager, error) {
	if s == nil {
		return nil, st.ErrNilStore
	}
	return &LockManager{
		store:      s,
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		ttl:        opts.TTL,
		maxRetries: coalesce(opts.MaxRetries, defaultMaxRetries),
		retryDelay: coalesce(opts.RetryDelay, defaultRetryDelay),
	}, nil
}

// Acquire attempts to take the lock for resource. A nil handle with a nil
// error means another holder owns it - contention is an expected outcome, not
// a failure. Only store errors are returned as errors.
func (m *LockManager) Acquire(ctx context.Context, resource string, ttl time.Duration) (*LockHandle, error) {
	if resource == "" {
		return nil, ErrEmptyResource
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("acquire %q: %w", resource, ErrNonPositiveTTL)
	}

	token := uuid.NewString()
	ok, err := m.store.SetNX(ctx, util.LockKey(resource), []byte(token), ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %q: %w", resource, err)
	}
	if !ok {
		m.hooks.LockContention(resource)
		return nil, nil
	}
	return &LockHandle{
		Resource:  resource,
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// Release deletes the lock only while the stored token still equals the
// handle's token, in a single atomic round trip. A holder whose TTL expired
// and was superseded can therefore never delete the new holder's lock.
// Returns whether a deletion occurred.
func (m *LockManager) Release(ctx context.Context, h *LockHandle) (bool, error) {
	if h == nil {
		return false, nil
	}
	n, err := m.store.DeleteIfEquals(ctx, util.LockKey(h.Resource), []byte(h.Token))
	if err != nil {
		return false, fmt.Errorf("release %q: %w", h.Resource, err)
	}
	if n == 0 {
		m.log.Debug("release found no owned lock (expired or superseded)", Fields{"resource": h.Resource})
	}
	return n > 0, nil
}

// Status reports whether resource is locked and, when token is the caller's
// own, whether the caller still owns it.
func (m *LockManager) Status(ctx context.Context, resource, token string) (*LockStatus, error) {
	if resource == "" {
		return nil, ErrEmptyResource
	}
	v, ok, err := m.store.Get(ctx, util.LockKey(resource))
	if err != nil {
		return nil, fmt.Errorf("lock status %q: %w", resource, err)
	}
	return &LockStatus{
		Resource: resource,
		Locked:   ok,
		Owned:    ok && token != "" && token == string(v),
	}, nil
}
