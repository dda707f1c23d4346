// Package bigcache adapts allegro/bigcache to local.Cache.
package bigcache

import (
	"context"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/yourorg/dollcache/local"
)

type Cache struct {
	c *bc.BigCache
}

var _ local.Cache = (*Cache)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Cache, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

func (p *Cache) Get(key string) ([]byte, bool) {
	b, err := p.c.Get(key)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Set ignores the per-entry TTL; BigCache expires whole generations via its
// global LifeWindow.
func (p *Cache) Set(key string, value []byte, _ time.Duration) {
	_ = p.c.Set(key, value)
}

func (p *Cache) Del(key string) {
	_ = p.c.Delete(key)
}

func (p *Cache) Close() error { return p.c.Close() }
