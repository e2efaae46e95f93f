package cache

import "sort"

// Hit is one enriched search result (spec §4.8): key, remaining TTL in
// milliseconds (0 if expired-on-read), its tags, and wall-clock creation
// time in milliseconds.
type Hit struct {
	Key           Key
	TTLMillis     int64
	Tags          []Tag
	CreatedMillis int64
}

// SearchQuery selects one operator per spec §4.8's priority order:
// TagAll (non-empty) > TagAny (non-empty) > Prefix > listing.
type SearchQuery struct {
	TagAll []Tag
	TagAny []Tag
	Prefix string
	Limit  int
}

// Search executes q against c and returns enriched hits (spec §4.8).
func (c *Cache) Search(q SearchQuery) []Hit {
	switch {
	case len(q.TagAll) > 0:
		return c.searchTagAll(q.TagAll, q.Limit)
	case len(q.TagAny) > 0:
		return c.searchTagAny(q.TagAny, q.Limit)
	case q.Prefix != "":
		return c.searchPrefix(q.Prefix, q.Limit)
	default:
		return c.searchRecent(q.Limit)
	}
}

// searchTagAll intersects per-tag key sets via a key->count map, keeping
// keys whose count equals the number of tags requested (spec §4.8,
// O(Σ|tag_i|)).
func (c *Cache) searchTagAll(tags []Tag, limit int) []Hit {
	counts := make(map[Key]int)
	for _, t := range tags {
		for _, k := range c.KeysByTag(t, 0) {
			counts[k]++
		}
	}
	var keys []Key
	for k, n := range counts {
		if n == len(tags) {
			keys = append(keys, k)
		}
	}
	return c.enrich(keys, limit)
}

// searchTagAny unions per-tag key sets in first-seen order, terminating
// early once limit is reached (spec §4.8).
func (c *Cache) searchTagAny(tags []Tag, limit int) []Hit {
	seen := make(map[Key]struct{})
	var keys []Key
	for _, t := range tags {
		for _, k := range c.KeysByTag(t, 0) {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
			if limit > 0 && len(keys) >= limit {
				return c.enrich(keys, limit)
			}
		}
	}
	return c.enrich(keys, limit)
}

// searchPrefix scans every shard for keys starting with prefix, no case
// folding, honoring limit (spec §4.8).
func (c *Cache) searchPrefix(prefix string, limit int) []Hit {
	var keys []Key
	now := c.now()
	for _, s := range c.shards {
		if limit > 0 && len(keys) >= limit {
			break
		}
		s.forEachPrefix(now, prefix, func(k Key, _ *entry) {
			if limit > 0 && len(keys) >= limit {
				return
			}
			keys = append(keys, k)
		})
	}
	return c.enrich(keys, limit)
}

// searchRecent enumerates every non-expired entry, sorts by wall-clock
// creation descending, and truncates to limit (spec §4.8, "listing").
func (c *Cache) searchRecent(limit int) []Hit {
	now := c.now()
	var hits []Hit
	for _, s := range c.shards {
		s.forEach(now, func(k Key, e *entry) {
			hits = append(hits, c.toHit(k, e, now))
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].CreatedMillis > hits[j].CreatedMillis })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// enrich looks up metadata for each key (spec §4.8's enrichment step),
// lazily dropping keys that turn out to be expired or gone by the time of
// lookup, and applies limit.
func (c *Cache) enrich(keys []Key, limit int) []Hit {
	now := c.now()
	hits := make([]Hit, 0, len(keys))
	for _, k := range keys {
		e, ok := c.shardFor(k).get(k, now)
		if !ok {
			continue
		}
		hits = append(hits, c.toHit(k, e, now))
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits
}

func (c *Cache) toHit(k Key, e *entry, now int64) Hit {
	return Hit{
		Key:           k,
		TTLMillis:     e.remainingTTL(now).Milliseconds(),
		Tags:          append([]Tag(nil), e.tags...),
		CreatedMillis: e.createdWall,
	}
}

// List returns every non-expired entry as enriched hits, newest first,
// truncated to limit (spec §6.2 GET /keys). It is the same algorithm as
// searchRecent, exposed directly for the "no selector" HTTP route.
func (c *Cache) List(limit int) []Hit { return c.searchRecent(limit) }
