// Package resource enforces the per-tree memory ceiling and throttles background IO.
//
//	┌───────────────────────────────────────────────┐
//	│                  Controller                   │
//	├───────────────────────┬───────────────────────┤
//	│  Memory ceiling       │  IO rate limiter      │
//	│  (weighted semaphore) │  (token bucket)       │
//	├───────────────────────┼───────────────────────┤
//	│  AcquireMemory        │  AcquireIO            │
//	│  ReleaseMemory        │  RateLimitedWriter    │
//	│  MemoryUsage          │                       │
//	└───────────────────────┴───────────────────────┘
//
// The arena reserves memory for every parallel slot array before it grows, and
// the tree reserves owned payload bytes on insert. AcquireMemory never blocks:
// a reservation either fits under the ceiling or fails with
// ErrMemoryLimitExceeded and nothing is reserved, so callers can fail the
// operation without having mutated anything.
//
// Background saves write through a RateLimitedWriter so a large dump does not
// starve foreground disk traffic.
//
// All methods treat a nil *Controller as "no limits".
package resource
