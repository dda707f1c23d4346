// Package ristretto adapts dgraph-io/ristretto to local.Cache.
package ristretto

import (
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/yourorg/dollcache/local"
)

type Cache struct {
	c *rc.Cache
}

var _ local.Cache = (*Cache)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Cache, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

func (p *Cache) Get(key string) ([]byte, bool) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false
	}
	return b, true
}

func (p *Cache) Set(key string, value []byte, ttl time.Duration) {
	p.c.SetWithTTL(key, value, int64(len(value)), ttl)
}

func (p *Cache) Del(key string) {
	p.c.Del(key)
}

func (p *Cache) Close() error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters for applications that enabled them.
// Not part of local.Cache.
func (p *Cache) Metrics() *rc.Metrics { return p.c.Metrics }
