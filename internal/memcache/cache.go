// Package memcache implements the bounded, cost-based in-memory image
// cache of §4.5: internal/imagepipe.ImageCaching backed by an LRU recency
// order plus manual cost accounting, since the recency library itself is
// item-count aware, not byte-cost aware.
package memcache

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"

	"imagepipe/internal/imagepipe"
)

// lowMemoryThreshold is the boundary between the two default budget
// fractions in §4.5.
const lowMemoryThreshold = 512 * 1024 * 1024

// unboundedBuckets caps simplelru's own count-based eviction far above any
// realistic number of distinct URL hashes, so eviction is driven entirely
// by DefaultCostLimit / evictUntilWithinBudget instead.
const unboundedBuckets = 1 << 20

// DefaultCostLimit returns 10% of physical memory if total physical
// memory is at most 512 MB, else 20% (§4.5). Returns 0 if the host's
// total memory could not be determined, in which case callers should
// supply an explicit limit instead.
func DefaultCostLimit() int64 {
	total := memory.TotalMemory()
	if total == 0 {
		return 0
	}
	frac := 0.20
	if total <= lowMemoryThreshold {
		frac = 0.10
	}
	return int64(float64(total) * frac)
}

// bucket holds every cache entry whose RequestKey.Hash collides on the
// same URL hash; entries within a bucket are distinguished by
// RequestKey.Equal under the caching-equivalent predicate.
type bucket struct {
	entries []entry
}

type entry struct {
	key  imagepipe.RequestKey
	img  imagepipe.Image
	cost int64
}

// Cache is a concurrency-safe, cost-bounded imagepipe.ImageCaching
// implementation. Eviction removes an entire URL-hash bucket at a time
// (every caching-equivalent variant of that URL), which is coarser than
// evicting single entries but keeps the recency structure genuinely
// item-count bounded rather than unbounded-key-space bounded.
type Cache struct {
	mu        sync.Mutex
	lru       *simplelru.LRU[uint64, *bucket]
	costUsed  int64
	costLimit int64
	log       *logrus.Entry
}

// NewCache returns a Cache with the given total cost budget in bytes. A
// non-positive costLimit disables eviction (every Put succeeds, nothing is
// ever removed for being over budget) — useful for tests, not recommended
// in production.
func NewCache(costLimit int64, log *logrus.Entry) *Cache {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	lru, err := simplelru.NewLRU[uint64, *bucket](unboundedBuckets, nil)
	if err != nil {
		// Only returned for a non-positive size, which unboundedBuckets
		// never is.
		panic(err)
	}
	return &Cache{
		lru:       lru,
		costLimit: costLimit,
		log:       log.WithField("component", "memcache.Cache"),
	}
}

// Get implements imagepipe.ImageCaching.
func (c *Cache) Get(key imagepipe.RequestKey) (imagepipe.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.lru.Get(key.Hash())
	if !ok {
		return imagepipe.Image{}, false
	}
	for _, e := range b.entries {
		if e.key.Equal(key) {
			return e.img, true
		}
	}
	return imagepipe.Image{}, false
}

// Put implements imagepipe.ImageCaching.
func (c *Cache) Put(key imagepipe.RequestKey, img imagepipe.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cost := img.CostBytes()
	h := key.Hash()
	b, ok := c.lru.Get(h)
	if !ok {
		b = &bucket{}
		c.lru.Add(h, b)
	}

	for i, e := range b.entries {
		if e.key.Equal(key) {
			c.costUsed += cost - e.cost
			b.entries[i] = entry{key: key, img: img, cost: cost}
			c.evictUntilWithinBudget()
			return
		}
	}

	b.entries = append(b.entries, entry{key: key, img: img, cost: cost})
	c.costUsed += cost
	c.evictUntilWithinBudget()
}

// Remove implements imagepipe.ImageCaching.
func (c *Cache) Remove(key imagepipe.RequestKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := key.Hash()
	b, ok := c.lru.Peek(h)
	if !ok {
		return
	}
	idx := -1
	for i, e := range b.entries {
		if e.key.Equal(key) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	c.costUsed -= b.entries[idx].cost
	b.entries = append(b.entries[:idx], b.entries[idx+1:]...)
	if len(b.entries) == 0 {
		c.lru.Remove(h)
	}
}

// Clear implements imagepipe.ImageCaching.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.costUsed = 0
}

// HandleMemoryWarning clears the cache. Wire this to whatever low-memory
// signal the host platform exposes (§4.5); the signal source itself is
// outside the core's scope.
func (c *Cache) HandleMemoryWarning() {
	c.log.Debug("low-memory signal received, clearing image cache")
	c.Clear()
}

// CostUsed reports the current total cost of all cached entries. Intended
// for tests and diagnostics.
func (c *Cache) CostUsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.costUsed
}

func (c *Cache) evictUntilWithinBudget() {
	if c.costLimit <= 0 {
		return
	}
	for c.costUsed > c.costLimit {
		_, b, ok := c.lru.RemoveOldest()
		if !ok {
			return
		}
		for _, e := range b.entries {
			c.costUsed -= e.cost
		}
		c.log.WithField("bucket_entries", len(b.entries)).Debug("evicted memory cache bucket over budget")
	}
}
