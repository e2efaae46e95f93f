package cache

// Options configures the cache engine. Zero values are safe; sane defaults
// are applied in New():
//   - Shards <= 0      => ReasonableShardCount()
//   - nil Metrics      => NoopMetrics
//   - nil Clock        => systemClock
//   - *Length/*Tags<=0 => unlimited
type Options struct {
	// Shards is the fixed number of shards for the cache's lifetime
	// (invariant I4). If 0, a default derived from GOMAXPROCS is used.
	Shards int

	// MaxKeyLength bounds key size in bytes (spec §3 default 1024). 0 means
	// unlimited.
	MaxKeyLength int
	// MaxTagsPerEntry bounds the tag count per key (spec §3 default 100).
	// 0 means unlimited.
	MaxTagsPerEntry int
	// MaxValueLength bounds value size in bytes. 0 means unlimited.
	MaxValueLength int

	// Metrics receives Hit/Miss/Put/Invalidation signals. nil => NoopMetrics.
	Metrics Metrics

	// Clock overrides the time source (tests). nil => systemClock.
	Clock Clock
}

func (o Options) withDefaults() Options {
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	return o
}
