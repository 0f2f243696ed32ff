// Package events provides event bus implementations for run and task events.
//
// Implementations:
//   - redis: Redis Streams with consumer groups, fanned out to local handlers
//   - memory: In-process handlers, for single-process use and tests
package events
