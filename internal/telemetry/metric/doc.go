// Package metric provides Prometheus metrics for sessiond.
//
//   - prometheus.go: registry, session lifecycle counters, /metrics handler
//   - collector.go: collector reading live session counts on scrape
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
