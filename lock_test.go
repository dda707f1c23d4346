package dollcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	st "github.com/yourorg/dollcache/store"
	"github.com/yourorg/dollcache/store/memory"
)

func newTestLocks(t *testing.T, mem st.Store, optsOpt func(*LockOptions)) *LockManager {
	t.Helper()
	opts := LockOptions{}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	m, err := NewLockManager(mem, opts)
	if err != nil {
		t.Fatalf("NewLockManager: %v", err)
	}
	return m
}

func TestAcquireContention(t *testing.T) {
	ctx := context.Background()
	m := newTestLocks(t, memory.New(), nil)

	h1, err := m.Acquire(ctx, "seat:42", 10*time.Second)
	if err != nil || h1 == nil {
		t.Fatalf("first acquire: h=%v err=%v", h1, err)
	}
	if h1.Token == "" {
		t.Fatal("handle has no token")
	}

	// contention is a nil handle, never an error
	h2, err := m.Acquire(ctx, "seat:42", 10*time.Second)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if h2 != nil {
		t.Fatal("second acquire succeeded inside the TTL window")
	}
}

func TestAcquireValidation(t *testing.T) {
	ctx := context.Background()
	m := newTestLocks(t, memory.New(), nil)

	if _, err := m.Acquire(ctx, "", time.Second); err != ErrEmptyResource {
		t.Fatalf("empty resource: err = %v", err)
	}
	if _, err := m.Acquire(ctx, "r", 0); err == nil {
		t.Fatal("zero ttl accepted")
	}
	if _, err := m.Acquire(ctx, "r", -time.Second); err == nil {
		t.Fatal("negative ttl accepted")
	}
}

func TestReleaseRequiresOwnership(t *testing.T) {
	ctx := context.Background()
	m := newTestLocks(t, memory.New(), nil)

	// A acquires with a tiny TTL and loses the lock to expiry.
	hA, err := m.Acquire(ctx, "seat:42", 5*time.Millisecond)
	if err != nil || hA == nil {
		t.Fatalf("acquire A: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	hB, err := m.Acquire(ctx, "seat:42", 10*time.Second)
	if err != nil || hB == nil {
		t.Fatalf("acquire B after expiry: h=%v err=%v", hB, err)
	}

	// A's stale token must not delete B's lock.
	if ok, err := m.Release(ctx, hA); err != nil || ok {
		t.Fatalf("stale release: ok=%v err=%v", ok, err)
	}
	status, err := m.Status(ctx, "seat:42", hB.Token)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Locked || !status.Owned {
		t.Fatalf("B lost its lock to a stale release: %+v", status)
	}

	if ok, err := m.Release(ctx, hB); err != nil || !ok {
		t.Fatalf("owner release: ok=%v err=%v", ok, err)
	}
}

func TestReleaseNilHandle(t *testing.T) {
	m := newTestLocks(t, memory.New(), nil)
	if ok, err := m.Release(context.Background(), nil); err != nil || ok {
		t.Fatalf("nil handle: ok=%v err=%v", ok, err)
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	m := newTestLocks(t, memory.New(), nil)

	s, err := m.Status(ctx, "free", "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if s.Locked || s.Owned {
		t.Fatalf("unlocked resource reported %+v", s)
	}

	h, err := m.Acquire(ctx, "busy", time.Minute)
	if err != nil || h == nil {
		t.Fatalf("acquire: %v", err)
	}
	if s, _ = m.Status(ctx, "busy", h.Token); !s.Locked || !s.Owned {
		t.Fatalf("owner sees %+v", s)
	}
	if s, _ = m.Status(ctx, "busy", "someone-else"); !s.Locked || s.Owned {
		t.Fatalf("foreign token sees %+v", s)
	}
}

func TestMutualExclusionConcurrent(t *testing.T) {
	ctx := context.Background()
	m := newTestLocks(t, memory.New(), nil)

	const callers = 32
	var acquired atomic.Int32
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			h, err := m.Acquire(ctx, "hot", time.Minute)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if h != nil {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()
	if n := acquired.Load(); n != 1 {
		t.Fatalf("%d concurrent acquires succeeded, want exactly 1", n)
	}
}
