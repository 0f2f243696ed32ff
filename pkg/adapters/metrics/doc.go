// Package metrics provides MetricsCollector implementations.
//
// Implementations:
//   - prometheus: counters, gauges and histograms via client_golang
//   - noop: discards everything; the default when no collector is configured
package metrics
