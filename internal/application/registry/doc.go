// Package registry owns the agents available to runs.
//
// Agents are constructed and initialized once at process start, looked up by
// name during execution and shut down together when the process stops.
// Agents that fail to initialize are not registered; their errors are kept
// for inspection through Failures.
package registry
