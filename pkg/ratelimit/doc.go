// Package ratelimit implements fixed-window request limiting with a
// Redis-primary, in-process-fallback counting store.
//
// # Overview
//
// Counting is a Store concern: RedisStore shares limits across instances,
// MemoryStore counts per process, and HybridStore runs on Redis until the
// first backend error, then serves increments from the in-process store so a
// backend outage degrades accuracy instead of dropping or waving through
// requests. The Limiter layers tier policy on top: independent windows and
// ceilings per tier, a super-admin skip for the per-user tier, and a
// progressive-delay tier that slows clients past a soft threshold instead of
// rejecting them.
//
// # Related Packages
//
//   - pkg/middleware: applies the limiter per request and writes the 429
//     response contract
package ratelimit
