// Package asynchook decouples hook implementations from hot paths: events are
// queued and delivered to the wrapped Hooks from worker goroutines, dropped
// when the queue is full.
//
// usage:
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	engine, _ := dollcache.New[Manifest](dollcache.Options[Manifest]{
//	    Namespace: "manifest",
//	    Store:     store,
//	    Codec:     codec.JSON[Manifest]{},
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/yourorg/dollcache"
)

type Hooks struct {
	inner dollcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ dollcache.Hooks = (*Hooks)(nil)

func New(inner dollcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) LockContention(r string)  { h.try(func() { h.inner.LockContention(r) }) }
func (h *Hooks) StampedeTimeout(k string) { h.try(func() { h.inner.StampedeTimeout(k) }) }
func (h *Hooks) SelfHeal(k, r string)     { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) StampedeRebuild(k string, l bool) {
	h.try(func() { h.inner.StampedeRebuild(k, l) })
}
func (h *Hooks) CacheWriteFailed(k string, err error) {
	h.try(func() { h.inner.CacheWriteFailed(k, err) })
}
func (h *Hooks) CascadeInvalidated(origin string, n int) {
	h.try(func() { h.inner.CascadeInvalidated(origin, n) })
}
