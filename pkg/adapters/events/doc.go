// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, every subscriber sees every event
//   - memory: In-memory fan-out for testing and single-instance deployments
package events
