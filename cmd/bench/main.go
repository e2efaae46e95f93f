// Command bench runs a synthetic Zipf-skewed workload against the tagcache
// engine and exposes optional pprof/Prometheus endpoints. Adapted from the
// teacher's capacity/policy-oriented load generator: this version drives
// Put/Get/InvalidateTag directly, since tagcache has no size-bounded
// eviction to tune.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/tagcache/cache"
	pmet "github.com/IvanBrykalov/tagcache/metrics/prom"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ---- Flags ----
	var (
		shards = flag.Int("shards", 0, "number of shards (0=auto)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")
		invPct   = flag.Int("invalidations", 1, "tag-invalidation percentage [0..100], taken out of writes")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		tags    = flag.Int("tags", 64, "distinct tag count, keys are tagged by index modulo this")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = keys/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "tagcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	c := cache.New(cache.Options{Shards: *shards, Metrics: metrics})

	tagFor := func(i int) cache.Tag {
		return cache.Tag("t:" + strconv.Itoa(i%(*tags)))
	}

	// ---- Preload half the keyspace to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = *keys / 2
	}
	for i := 0; i < pl; i++ {
		k := cache.Key("k:" + strconv.Itoa(i))
		_ = c.Put(k, []byte("v"+strconv.Itoa(i)), []cache.Tag{tagFor(i)}, 0)
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	invPctVal := *invPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	tagCount := *tags
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, invalidations, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyIndex := func() int { return int(localZipf.Uint64()) }

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				roll := int(localR.Int31n(100))
				switch {
				case roll < readPctVal:
					atomic.AddUint64(&reads, 1)
					idx := keyIndex()
					if _, ok := c.Get(cache.Key("k:" + strconv.Itoa(idx))); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				case roll < readPctVal+invPctVal:
					atomic.AddUint64(&invalidations, 1)
					c.InvalidateTag(cache.Tag("t:" + strconv.Itoa(localR.Intn(tagCount))))
				default:
					atomic.AddUint64(&writes, 1)
					idx := keyIndex()
					k := cache.Key("k:" + strconv.Itoa(idx))
					_ = c.Put(k, []byte("v"+strconv.Itoa(localR.Int())), []cache.Tag{tagFor(idx)}, 0)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	invN := atomic.LoadUint64(&invalidations)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("shards=%d workers=%d keys=%d tags=%d dur=%v seed=%d\n",
		*shards, workersN, *keys, *tags, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  invalidations=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN, invN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("Len()=%d\n", c.Len())
}
