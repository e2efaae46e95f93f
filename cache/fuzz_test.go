package cache

import (
	"strings"
	"testing"
)

// Fuzz basic Put/Get/InvalidateKey semantics under arbitrary string inputs.
// Guards against panics and ensures core invariants hold.
// NOTE: key/value lengths are capped to avoid pathological memory usage
// during fuzzing (this does not weaken the invariants we check).
func FuzzCache_PutGetInvalidate(f *testing.F) {
	// Seed corpus: empty, ASCII, Unicode, long strings.
	f.Add("", "")
	f.Add("a", "1")
	f.Add("b", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12 // 4096
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		c := New(Options{Shards: 4})

		if err := c.Put(Key(k), []byte(v), nil, 0); err != nil {
			if k == "" {
				return // empty key is rejected by design; nothing further to check
			}
			t.Fatalf("unexpected Put error for %q: %v", k, err)
		}

		got, ok := c.Get(Key(k))
		if !ok || string(got) != v {
			t.Fatalf("after Put/Get: want %q, got %q ok=%v", v, got, ok)
		}

		if !c.InvalidateKey(Key(k)) {
			t.Fatalf("InvalidateKey must return true")
		}
		if _, ok := c.Get(Key(k)); ok {
			t.Fatalf("key must be absent after InvalidateKey")
		}
	})
}
