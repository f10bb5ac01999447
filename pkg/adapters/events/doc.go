// Package events provides event bus implementations.
//
// Implementations:
//   - memory: process-wide pub/sub bus with per-subscriber buffers
//   - redis: Redis Streams mirror of published events for external consumers
package events
