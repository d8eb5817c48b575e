// Package testutil provides seeded random record generators for tests.
//
// This package is intended for use in tests and benchmarks only.
//
//	rng := testutil.NewRNG(seed)
//	for _, n := range rng.Perm(500) { ... }
//	data := rng.Payload(1, 16) // 1..16 random bytes
package testutil
