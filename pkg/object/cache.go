package object

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// deltaBaseCache keeps recently reconstructed pack objects so that
// neighbouring deltas sharing a base do not re-inflate the whole chain. A nil
// cache is valid and stores nothing.
type deltaBaseCache struct {
	entries *lru.Cache[packCacheKey, packCacheValue]
}

func newDeltaBaseCache(size int) (*deltaBaseCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[packCacheKey, packCacheValue](size)
	if err != nil {
		return nil, err
	}
	return &deltaBaseCache{entries: c}, nil
}

func (c *deltaBaseCache) get(k packCacheKey) (packCacheValue, bool) {
	if c == nil {
		return packCacheValue{}, false
	}
	return c.entries.Get(k)
}

func (c *deltaBaseCache) add(k packCacheKey, v packCacheValue) {
	if c == nil {
		return
	}
	c.entries.Add(k, v)
}

// purgePack drops every cached object that came from packPath.
func (c *deltaBaseCache) purgePack(packPath string) {
	if c == nil {
		return
	}
	for _, k := range c.entries.Keys() {
		if k.pack == packPath {
			c.entries.Remove(k)
		}
	}
}
