package vtutil

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheEntry remembers a lookup outcome. Hashes VirusTotal has never seen
// are cached as well, so repeated scans of one image stay within quota.
type cacheEntry struct {
	report   *FileReport
	notFound bool
}

type resultCache struct {
	lru *expirable.LRU[string, cacheEntry]
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	if size <= 0 {
		return nil
	}
	return &resultCache{lru: expirable.NewLRU[string, cacheEntry](size, nil, ttl)}
}

func (c *resultCache) get(hash string) (cacheEntry, bool) {
	if c == nil {
		return cacheEntry{}, false
	}
	return c.lru.Get(hash)
}

func (c *resultCache) add(hash string, e cacheEntry) {
	if c == nil {
		return
	}
	c.lru.Add(hash, e)
}

func (c *resultCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *resultCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
