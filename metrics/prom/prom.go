package prom

import (
	"github.com/IvanBrykalov/tagcache/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	puts          prometheus.Counter
	invalidations prometheus.Counter
	removed       *prometheus.CounterVec
	sizeEnt       prometheus.Gauge
	sizeBytes     prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "puts_total",
			Help:        "Cache puts",
			ConstLabels: constLabels,
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "invalidations_total",
			Help:        "Entries invalidated, by any means",
			ConstLabels: constLabels,
		}),
		removed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "removed_total",
				Help:        "Entries removed by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		sizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_bytes",
			Help:        "Total resident value bytes",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.puts, a.invalidations, a.removed, a.sizeEnt, a.sizeBytes)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Put increments the put counter.
func (a *Adapter) Put() { a.puts.Inc() }

// Invalidation adds n to the invalidation counter.
func (a *Adapter) Invalidation(n uint64) { a.invalidations.Add(float64(n)) }

// Removed increments the removed counter with a reason label.
func (a *Adapter) Removed(r cache.RemovalReason) {
	a.removed.WithLabelValues(reason(r)).Inc()
}

// Size updates gauges for the number of entries and total resident bytes.
func (a *Adapter) Size(entries int, bytes int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

// reason maps RemovalReason to a stable label value.
func reason(r cache.RemovalReason) string {
	switch r {
	case cache.RemovedExpired:
		return "expired"
	case cache.RemovedInvalidateKey:
		return "invalidate_key"
	case cache.RemovedInvalidateTag:
		return "invalidate_tag"
	case cache.RemovedFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
