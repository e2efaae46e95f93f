package cache

import (
	"strings"
	"sync"
)

// shard is one independently-locked partition of the cache (spec §3). It
// owns a forward map (key -> entry) and a reverse map (tag -> key set), both
// guarded by a single RWMutex — collapsing the teacher's per-bucket
// concurrent-map-plus-list design (cache/shard.go) to one lock per shard,
// which spec §9 explicitly permits ("a re-implementation may collapse these
// to a single layer of N independently-locked shards").
//
// Lock discipline (spec §5): every exported method here takes the lock for
// its own duration and releases it before returning. In particular, get
// never holds a read handle across the removal of the same key — on a
// lazily-detected expiry it re-enters removeLocked() already holding the
// write lock taken at the top of get, so there is no lock upgrade and no
// window where another goroutine could observe a stale read handle blocking
// a delete. This is the deadlock-class fix spec §9 calls out.
type shard struct {
	mu    sync.RWMutex
	data  map[Key]*entry
	tagIx map[Tag]map[Key]struct{}
}

func newShard() *shard {
	return &shard{
		data:  make(map[Key]*entry),
		tagIx: make(map[Tag]map[Key]struct{}),
	}
}

// put inserts or replaces the entry for k, detaching old tag bindings and
// attaching new ones first (spec §4.2 algorithm, steps 3-6).
func (s *shard) put(k Key, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.data[k]; ok {
		s.detachTagsLocked(k, old.tags)
	}
	s.attachTagsLocked(k, e.tags)
	s.data[k] = e
}

// get returns the entry for k, performing lazy expiry if needed. Expired
// entries are removed and reported as absent (spec §4.3).
func (s *shard) get(k Key, nowMonotonic int64) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[k]
	if !ok {
		return nil, false
	}
	if e.isExpired(nowMonotonic) {
		s.removeLocked(k, e.tags)
		return nil, false
	}
	return e, true
}

// peek is like get but never mutates state: an expired entry is reported
// absent and left in place. Used by InvalidateTags to filter candidates
// without performing the removal itself.
func (s *shard) peek(k Key, nowMonotonic int64) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[k]
	if !ok || e.isExpired(nowMonotonic) {
		return nil, false
	}
	return e, true
}

// remove deletes k unconditionally if present, detaching its tags. Returns
// the removed entry (for metrics/byte accounting) and whether it existed.
func (s *shard) remove(k Key) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[k]
	if !ok {
		return nil, false
	}
	s.removeLocked(k, e.tags)
	return e, true
}

// removeLocked deletes k from both maps; caller must hold s.mu for writing.
func (s *shard) removeLocked(k Key, tags []Tag) {
	delete(s.data, k)
	s.detachTagsLocked(k, tags)
}

// attachTagsLocked inserts k into each tag's reverse set, creating the set
// on first use. Caller must hold s.mu for writing.
func (s *shard) attachTagsLocked(k Key, tags []Tag) {
	for _, t := range tags {
		set, ok := s.tagIx[t]
		if !ok {
			set = make(map[Key]struct{}, 1)
			s.tagIx[t] = set
		}
		set[k] = struct{}{}
	}
}

// detachTagsLocked removes k from each tag's reverse set, reclaiming the set
// once it empties (invariant I5). Caller must hold s.mu for writing.
func (s *shard) detachTagsLocked(k Key, tags []Tag) {
	for _, t := range tags {
		set, ok := s.tagIx[t]
		if !ok {
			continue
		}
		delete(set, k)
		if len(set) == 0 {
			delete(s.tagIx, t)
		}
	}
}

// keysForTag appends to out a snapshot of keys currently associated with t,
// filtered to non-expired entries, honoring limit (0 = unlimited). Order is
// unspecified (spec §4.4).
func (s *shard) keysForTag(t Tag, nowMonotonic int64, limit int, out []Key) []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.tagIx[t]
	if !ok {
		return out
	}
	for k := range set {
		if limit > 0 && len(out) >= limit {
			return out
		}
		if e, ok := s.data[k]; ok && !e.isExpired(nowMonotonic) {
			out = append(out, k)
		}
	}
	return out
}

// invalidateTag removes every key currently tagged t and clears the set.
// The count returned is advisory: a key still listed in the set whose entry
// is already gone from the forward map is skipped rather than counted, per
// spec §9 ("count is advisory, set membership is authoritative").
func (s *shard) invalidateTag(t Tag) (removedBytes int64, removed []Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.tagIx[t]
	if !ok {
		return 0, nil
	}
	keys := make([]Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	for _, k := range keys {
		e, ok := s.data[k]
		if !ok {
			continue
		}
		delete(s.data, k)
		removedBytes += int64(len(e.value))
		removed = append(removed, k)
		// Detach from every OTHER tag this key carried; its own set (t) is
		// cleared in bulk below.
		for _, et := range e.tags {
			if et == t {
				continue
			}
			if other, ok := s.tagIx[et]; ok {
				delete(other, k)
				if len(other) == 0 {
					delete(s.tagIx, et)
				}
			}
		}
	}
	delete(s.tagIx, t)
	return removedBytes, removed
}

// flush clears both maps entirely, returning the number of entries and the
// total value bytes removed.
func (s *shard) flush() (count int, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count = len(s.data)
	for _, e := range s.data {
		bytes += int64(len(e.value))
	}
	s.data = make(map[Key]*entry)
	s.tagIx = make(map[Tag]map[Key]struct{})
	return count, bytes
}

// len and totalBytes report the shard's current resident size; used by
// /stats per-shard reporting (spec §4.11) and metrics Size() callbacks.
func (s *shard) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *shard) totalBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.data {
		n += int64(len(e.value))
	}
	return n
}

// tagNames returns the tags currently indexed in this shard: a tag appears
// here while at least one key resident in this shard carries it, so the same
// tag may appear in several shards.
func (s *shard) tagNames() []Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tag, 0, len(s.tagIx))
	for t := range s.tagIx {
		out = append(out, t)
	}
	return out
}

// sweepExpired removes every currently-expired entry. It collects candidates
// under a read pass (spec §4.7: "no unique lock is held across an entire
// shard") then removes them in a short write pass; entries that are put
// again or removed by another caller in the window between the two passes
// are simply skipped on removal.
func (s *shard) sweepExpired(nowMonotonic int64) (removed int, bytes int64) {
	s.mu.RLock()
	candidates := make([]Key, 0)
	for k, e := range s.data {
		if e.isExpired(nowMonotonic) {
			candidates = append(candidates, k)
		}
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return 0, 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range candidates {
		e, ok := s.data[k]
		if !ok || !e.isExpired(nowMonotonic) {
			continue
		}
		s.removeLocked(k, e.tags)
		removed++
		bytes += int64(len(e.value))
	}
	return removed, bytes
}

// forEach calls fn for every non-expired entry in the shard under a read
// lock; used by search's prefix scan and recent-listing operators. fn must
// not call back into the shard.
func (s *shard) forEach(nowMonotonic int64, fn func(k Key, e *entry)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, e := range s.data {
		if e.isExpired(nowMonotonic) {
			continue
		}
		fn(k, e)
	}
}

// forEachPrefix is a convenience wrapper over forEach that additionally
// filters by a literal, case-sensitive key prefix (spec §4.8).
func (s *shard) forEachPrefix(nowMonotonic int64, prefix string, fn func(k Key, e *entry)) {
	s.forEach(nowMonotonic, func(k Key, e *entry) {
		if strings.HasPrefix(string(k), prefix) {
			fn(k, e)
		}
	})
}
