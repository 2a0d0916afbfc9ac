package model

import (
	"math"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// HoverCacheSize is the number of operating points each motor keeps.
const HoverCacheSize = 256

// OperatingPoint is a motor's thrust and current draw at one throttle.
type OperatingPoint struct {
	Throttle float64
	Thrust   float64
	Current  float64
}

// CacheStats reports hover cache usage.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// hoverCache memoises operating points per throttle in a fixed-size LRU.
// Keys are the exact bit pattern of the throttle, so 0.5 and 0.5000000001
// are distinct entries.
type hoverCache struct {
	entries *lru.Cache[uint64, OperatingPoint]
	hits    atomic.Int64
	misses  atomic.Int64
}

func newHoverCache(size int) *hoverCache {
	if size < 1 {
		size = HoverCacheSize
	}
	entries, err := lru.New[uint64, OperatingPoint](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &hoverCache{entries: entries}
}

func (c *hoverCache) get(throttle float64) (OperatingPoint, bool) {
	if c == nil {
		return OperatingPoint{}, false
	}
	op, ok := c.entries.Get(math.Float64bits(throttle))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return op, ok
}

func (c *hoverCache) put(op OperatingPoint) {
	if c == nil {
		return
	}
	c.entries.Add(math.Float64bits(op.Throttle), op)
}

func (c *hoverCache) stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{Entries: c.entries.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}
