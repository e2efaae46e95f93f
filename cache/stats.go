package cache

import "github.com/IvanBrykalov/tagcache/internal/util"

// stats holds the cache-wide u64 counters from spec §3 ("Cache" data model)
// as cache-line-padded atomics (teacher precedent: the teacher's shard.go
// hits/misses counters use util.PaddedAtomicInt64/Uint64 to avoid false sharing between
// goroutines hammering different counters).
type stats struct {
	hits          util.PaddedAtomicUint64
	misses        util.PaddedAtomicUint64
	puts          util.PaddedAtomicUint64
	invalidations util.PaddedAtomicUint64
}

// Stats is an immutable snapshot of cache-wide counters (spec §4.1: "may be
// snapshot-cloned cheaply without blocking writers for long").
type Stats struct {
	Hits          uint64
	Misses        uint64
	Puts          uint64
	Invalidations uint64
}

// HitRatio returns Hits/(Hits+Misses), or 0 when no gets have completed.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s *stats) snapshot() Stats {
	return Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Puts:          s.puts.Load(),
		Invalidations: s.invalidations.Load(),
	}
}
