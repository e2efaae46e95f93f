// Package cache implements the tagcache concurrent engine: a sharded
// in-memory key/value store with first-class tag-based grouping and
// invalidation, lazy plus periodic TTL expiry, and tag-set search.
//
// Design
//
//   - Concurrency: the cache is split into shards, each protected by a
//     single RWMutex guarding both its forward (key -> entry) map and its
//     reverse (tag -> key set) map. The default shard count is chosen by a
//     heuristic (internal/util.ReasonableShardCount) derived from
//     GOMAXPROCS. Shard count is fixed for the cache's lifetime.
//
//   - Routing: keys are routed to shards via a per-cache-instance seeded
//     FNV-1a hash. The seed is drawn from crypto/rand at construction, not a
//     process-wide constant, so a client cannot predict shard placement.
//
//   - Tag index: every shard keeps its own reverse tag -> key-set index,
//     updated on every put/remove under the same lock as the forward map.
//     Tags are not globally bucketed: the same tag is partitioned across
//     shards, since keys sharing a tag may hash to different shards.
//
//   - TTL: entries carry an optional duration. Expiry is lazy on read and
//     also reaped periodically by a Sweeper. Lazy expiry never holds a read
//     handle across the entry's removal — it re-enters already holding the
//     write lock, avoiding the deadlock class the locking discipline forbids.
//
//   - Search: tag_all (intersection), tag_any (union), prefix scan, and a
//     recent-listing fallback are implemented as read-side planners over the
//     primitives above (see search.go).
//
// Basic usage
//
//	c := cache.New(cache.Options{Shards: 16})
//	_ = c.Put("user:42", []byte("alice"), []cache.Tag{"user", "active"}, 0)
//	if v, ok := c.Get("user:42"); ok {
//	    _ = v
//	}
//	c.InvalidateTag("active")
//
// With TTL and a Sweeper
//
//	c := cache.New(cache.Options{Shards: 8})
//	_ = c.Put("session:1", []byte("tok"), nil, 200*time.Millisecond)
//	sw := cache.NewSweeper(c, time.Minute, nil)
//	go sw.Run(ctx)
//
// Exporting metrics
//
//	m := prom.New(nil, "tagcache", "core", nil) // implements cache.Metrics
//	c := cache.New(cache.Options{Metrics: m})
package cache
