// Package fingerprint provides the deterministic hash primitives behind
// compilation cache keys: a seeded 64-bit rolling hash for constant
// payloads and the sha256-based construction of the opaque program key.
// All output is stable across processes and platforms.
package fingerprint

import "github.com/cespare/xxhash/v2"

// Rolling folds data into a running 64-bit accumulator seeded with seed.
// Fingerprinting a sequence of payloads means starting from seed 0 and
// feeding each fold's result back in as the next seed, so both content and
// order are captured.
func Rolling(seed uint64, data []byte) uint64 {
	d := xxhash.NewWithSeed(seed)
	_, _ = d.Write(data)
	return d.Sum64()
}

// Hash64 returns the unseeded 64-bit fingerprint of data.
func Hash64(data []byte) uint64 { return xxhash.Sum64(data) }

// Hash64String returns the unseeded 64-bit fingerprint of s.
func Hash64String(s string) uint64 { return xxhash.Sum64String(s) }
