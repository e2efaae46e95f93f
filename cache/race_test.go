package cache

import (
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"time"

	"testing"
)

// A mixed workload of concurrent Put/Get/InvalidateKey/InvalidateTag on
// random keys and tags. Should pass under `-race` without detector reports.
func TestRace_Basic(t *testing.T) {
	c := New(Options{Shards: 32})

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 50_000
	tagspace := 256
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := Key("k:" + strconv.Itoa(r.Intn(keyspace)))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — InvalidateKey
					c.InvalidateKey(k)
				case 5, 6, 7, 8, 9: // ~5% — InvalidateTag
					c.InvalidateTag(Tag("t:" + strconv.Itoa(r.Intn(tagspace))))
				case 10, 11, 12, 13, 14: // ~5% — Put with TTL
					tag := Tag("t:" + strconv.Itoa(r.Intn(tagspace)))
					_ = c.Put(k, []byte("x"), []Tag{tag}, time.Duration(10+r.Intn(20))*time.Millisecond)
				case 15, 16, 17, 18, 19: // ~5% — Put, no TTL
					tag := Tag("t:" + strconv.Itoa(r.Intn(tagspace)))
					_ = c.Put(k, []byte("x"), []Tag{tag}, 0)
				default: // ~80% — Get
					c.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()
}

// A concurrent sweeper runs alongside this test's own Put/Get workload on
// short-TTL keys; exercises the two-pass collect-then-remove discipline in
// shard.sweepExpired under race.
func TestRace_SweepConcurrentWithPuts(t *testing.T) {
	c := New(Options{Shards: 16})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.SweepExpired()
			}
		}
	}()

	for w := 0; w < 4*runtime.GOMAXPROCS(0); w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
			deadline := time.Now().Add(200 * time.Millisecond)
			for time.Now().Before(deadline) {
				k := Key("k:" + strconv.Itoa(r.Intn(1000)))
				_ = c.Put(k, []byte("x"), nil, time.Millisecond)
				c.Get(k)
			}
		}(w)
	}

	time.Sleep(250 * time.Millisecond)
	close(stop)
	wg.Wait()
}
