package cache

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/IvanBrykalov/tagcache/internal/util"
)

// Cache is a sharded, in-memory, tag-indexed key/value cache (spec §2, C3).
// All methods are safe for concurrent use by any number of goroutines.
type Cache struct {
	shards []*shard
	seed   uint64
	opt    Options
	st     stats
}

// New constructs a Cache with the given Options. Defaults: see Options.
func New(opt Options) *Cache {
	opt = opt.withDefaults()

	n := opt.Shards
	if n <= 0 {
		n = util.ReasonableShardCount()
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = newShard()
	}

	return &Cache{
		shards: shards,
		seed:   randSeed(),
		opt:    opt,
	}
}

// randSeed produces the per-cache hash seed (spec §4.1). crypto/rand is used
// rather than a process constant so the seed cannot be guessed from outside
// (discourages client-side hash flooding of a single shard).
func randSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively unreachable on supported
		// platforms; fall back to a fixed value rather than panicking the
		// cache constructor.
		return 0x9e3779b97f4a7c15
	}
	return binary.LittleEndian.Uint64(b[:])
}

// shardFor routes k to its owning shard (invariant I4).
func (c *Cache) shardFor(k Key) *shard {
	h := util.SeededFnv64a(c.seed, []byte(k))
	idx := util.ShardIndex(h, len(c.shards))
	return c.shards[idx]
}

// NumShards returns the fixed shard count for this cache instance.
func (c *Cache) NumShards() int { return len(c.shards) }

func (c *Cache) now() int64  { return c.opt.Clock.NowMonotonic() }
func (c *Cache) wall() int64 { return c.opt.Clock.NowWall() }

func (c *Cache) bumpSize() { c.opt.Metrics.Size(c.Len(), c.TotalBytes()) }

// Put inserts or replaces key with value, tags, and an optional ttl (0 means
// no expiry). This is spec §4.2: it cannot fail under normal operation once
// inputs pass validation.
func (c *Cache) Put(k Key, value []byte, tags []Tag, ttl time.Duration) error {
	if err := validateKey(k, c.opt.MaxKeyLength); err != nil {
		return err
	}
	if c.opt.MaxValueLength > 0 && len(value) > c.opt.MaxValueLength {
		return BadRequestf("value_too_long")
	}
	cleanTags, err := validateTags(tags, c.opt.MaxTagsPerEntry)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}

	e := &entry{
		value:            value,
		tags:             cleanTags,
		createdMonotonic: c.now(),
		createdWall:      c.wall(),
		ttl:              ttl,
	}
	c.shardFor(k).put(k, e)
	c.st.puts.Add(1)
	c.opt.Metrics.Put()
	c.bumpSize()
	return nil
}

// Get returns the value for k and a presence flag (spec §4.3).
func (c *Cache) Get(k Key) ([]byte, bool) {
	e, ok := c.shardFor(k).get(k, c.now())
	if !ok {
		c.st.misses.Add(1)
		c.opt.Metrics.Miss()
		return nil, false
	}
	c.st.hits.Add(1)
	c.opt.Metrics.Hit()
	return e.value, true
}

// InvalidateKey removes k if present (spec §4.5). Returns whether it existed.
func (c *Cache) InvalidateKey(k Key) bool {
	_, ok := c.shardFor(k).remove(k)
	if ok {
		c.st.invalidations.Add(1)
		c.opt.Metrics.Invalidation(1)
		c.opt.Metrics.Removed(RemovedInvalidateKey)
		c.bumpSize()
	}
	return ok
}

// InvalidateTag removes every key carrying t across all shards, returning
// the number removed (spec §4.5).
func (c *Cache) InvalidateTag(t Tag) int {
	var total int
	for _, s := range c.shards {
		_, removed := s.invalidateTag(t)
		total += len(removed)
	}
	if total > 0 {
		c.st.invalidations.Add(uint64(total))
		c.opt.Metrics.Invalidation(uint64(total))
		for range total {
			c.opt.Metrics.Removed(RemovedInvalidateTag)
		}
		c.bumpSize()
	}
	return total
}

// TagMode selects how InvalidateTags combines multiple tags.
type TagMode int

const (
	// TagAny invalidates the union of keys across the given tags.
	TagAny TagMode = iota
	// TagAll invalidates only keys carrying every given tag.
	TagAll
)

// InvalidateTags invalidates keys selected by mode across tags (spec §4.9).
// TagAll is implemented as: fetch keys of the first tag, keep only those
// whose current entry carries every requested tag, then invalidate the
// survivors — exactly spec §4.9's prescribed algorithm.
func (c *Cache) InvalidateTags(tags []Tag, mode TagMode) int {
	if len(tags) == 0 {
		return 0
	}
	switch mode {
	case TagAny:
		var total int
		seen := make(map[Key]struct{})
		for _, t := range tags {
			for _, k := range c.KeysByTag(t, 0) {
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				if c.InvalidateKey(k) {
					total++
				}
			}
		}
		return total
	default: // TagAll
		candidates := c.KeysByTag(tags[0], 0)
		var total int
		for _, k := range candidates {
			e, ok := c.shardFor(k).peek(k, c.now())
			if !ok || !e.hasAllTags(tags) {
				continue
			}
			if c.InvalidateKey(k) {
				total++
			}
		}
		return total
	}
}

// InvalidateKeys invalidates every key in keys, returning the count actually
// removed (spec §4.9 bulk_delete semantics reused for the named endpoint).
func (c *Cache) InvalidateKeys(keys []Key) int {
	var n int
	for _, k := range keys {
		if c.InvalidateKey(k) {
			n++
		}
	}
	return n
}

// Flush removes every entry in the cache, returning the total removed (spec
// §4.5).
func (c *Cache) Flush() int {
	var total int
	for _, s := range c.shards {
		n, _ := s.flush()
		total += n
	}
	if total > 0 {
		c.st.invalidations.Add(uint64(total))
		c.opt.Metrics.Invalidation(uint64(total))
		for range total {
			c.opt.Metrics.Removed(RemovedFlush)
		}
	}
	c.bumpSize()
	return total
}

// KeysByTag returns at most limit keys currently tagged t (0 = unlimited).
// Order is unspecified (spec §4.4).
func (c *Cache) KeysByTag(t Tag, limit int) []Key {
	var out []Key
	now := c.now()
	for _, s := range c.shards {
		out = s.keysForTag(t, now, limit, out)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// BulkGet maps each key through Get, omitting absent/expired entries from
// the result rather than returning them as nulls (spec §4.9).
func (c *Cache) BulkGet(keys []Key) map[Key][]byte {
	out := make(map[Key][]byte, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// BulkDelete invalidates each key in keys, returning the count that existed.
func (c *Cache) BulkDelete(keys []Key) int {
	return c.InvalidateKeys(keys)
}

// Len returns the total number of resident entries across all shards.
func (c *Cache) Len() int {
	var n int
	for _, s := range c.shards {
		n += s.len()
	}
	return n
}

// TotalBytes returns the total resident value bytes across all shards.
func (c *Cache) TotalBytes() int64 {
	var n int64
	for _, s := range c.shards {
		n += s.totalBytes()
	}
	return n
}

// ShardCounts returns per-shard item counts and byte totals, in shard order,
// for the HTTP /stats endpoint (spec §4.11).
func (c *Cache) ShardCounts() (items []int, bytes []int64) {
	items = make([]int, len(c.shards))
	bytes = make([]int64, len(c.shards))
	for i, s := range c.shards {
		items[i] = s.len()
		bytes[i] = s.totalBytes()
	}
	return items, bytes
}

// TagCount returns the number of distinct tags currently indexed across all
// shards (spec §4.11's "tags" field in the /stats document). A tag counts
// once here even if it is attached to keys in more than one shard.
func (c *Cache) TagCount() int {
	seen := make(map[Tag]struct{})
	for _, s := range c.shards {
		for _, t := range s.tagNames() {
			seen[t] = struct{}{}
		}
	}
	return len(seen)
}

// Snapshot returns the current cache-wide counters (spec §4.1, P4).
func (c *Cache) Snapshot() Stats { return c.st.snapshot() }

// SweepExpired removes every currently-expired entry across all shards and
// returns the count removed. Called by the Sweeper (C4) and safe to call
// directly in tests.
func (c *Cache) SweepExpired() int {
	now := c.now()
	var total int
	for _, s := range c.shards {
		n, _ := s.sweepExpired(now)
		total += n
	}
	if total > 0 {
		for range total {
			c.opt.Metrics.Removed(RemovedExpired)
		}
		c.bumpSize()
	}
	return total
}
