// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

const fnvPrime64 = 1099511628211

// SeededFnv64a hashes b using 64-bit FNV-1a seeded with seed instead of the
// fixed fnvOffset64 constant. Mixing a per-cache random seed into the hash
// state (rather than using a process-wide constant) means a client who knows
// the algorithm still cannot predict which shard a chosen key lands on,
// which defeats hash-flooding attempts to concentrate load on one shard.
func SeededFnv64a(seed uint64, b []byte) uint64 {
	h := seed
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}
