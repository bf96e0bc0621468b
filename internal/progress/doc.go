// Package progress implements the live progress channel of the console: a
// self-healing WebSocket client that keeps the latest processing event per
// episode, plus a non-blocking hub that batches those events out to pluggable
// sinks such as structured logs or Prometheus metrics.
package progress
