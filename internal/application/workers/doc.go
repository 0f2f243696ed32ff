// Package workers implements the shared worker pool that runs agent calls.
//
// The pool manages a fixed number of goroutines that:
//   - Take task jobs dispatched by run executors from a bounded queue
//   - Recover from panicking jobs and keep serving
//   - Drain queued jobs before stopping on shutdown
//
// The health monitor tracks worker status and records pool metrics.
package workers
