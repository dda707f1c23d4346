// Package memory implements store.Store in process memory. It backs tests and
// demos; all conditional operations are atomic under one lock, so lock-manager
// semantics hold the same way they do against a real server.
package memory

import (
	"bytes"
	"context"
	"path"
	"strconv"
	"sync"
	"time"

	st "github.com/yourorg/dollcache/store"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Memory struct {
	mu   sync.RWMutex
	m    map[string]entry
	sets map[string]map[string]struct{}
}

var _ st.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		m:    make(map[string]entry),
		sets: make(map[string]map[string]struct{}),
	}
}

// live returns the entry at key, evicting it first when expired.
// Caller must hold mu for writing.
func (s *Memory) live(key string) ([]byte, bool) {
	e, ok := s.m[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(s.m, key)
		return nil, false
	}
	return e.v, true
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value, ttl)
	return nil
}

func (s *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.put(key, value, ttl)
	return true, nil
}

func (s *Memory) put(key string, value []byte, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.m[key] = entry{v: v, exp: exp}
}

func (s *Memory) DeleteIfEquals(_ context.Context, key string, expected []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok || !bytes.Equal(v, expected) {
		return 0, nil
	}
	delete(s.m, key)
	return 1, nil
}

func (s *Memory) Delete(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := s.live(k); ok {
			delete(s.m, k)
			n++
		}
		if _, ok := s.sets[k]; ok {
			delete(s.sets, k)
			n++
		}
	}
	return n, nil
}

func (s *Memory) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur int64
	if v, ok := s.live(key); ok {
		cur, _ = strconv.ParseInt(string(v), 10, 64)
	}
	cur++
	s.m[key] = entry{v: []byte(strconv.FormatInt(cur, 10))}
	return cur, nil
}

func (s *Memory) AddToSet(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *Memory) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out, nil
}

func (s *Memory) RemoveFromSet(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return nil
}

func (s *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.m {
		if _, ok := s.live(k); !ok {
			continue
		}
		if match, _ := path.Match(pattern, k); match {
			out = append(out, k)
		}
	}
	for k := range s.sets {
		if match, _ := path.Match(pattern, k); match {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Memory) Close(context.Context) error { return nil }
