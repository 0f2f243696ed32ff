// Package orchestrator implements the task-graph execution engine.
//
// A run goes through the following steps:
//   - BuildTaskGraph validates a plan (ids, priorities, dependencies, cycles)
//   - the Executor dispatches ready tasks to agents with bounded concurrency
//   - task outcomes are folded into an ExecutionReport by an Aggregator
//
// The Manager ties these together for callers, tracking active runs so they
// can be inspected or cancelled and storing final reports.
//
// One coordinator goroutine per run owns every task state transition.
// Dispatched tasks report back over a channel, so the ready queue is only
// re-evaluated when a task finishes or the run is cancelled.
package orchestrator
