// Package progress provides the event primitives, non-blocking hub, and emitter
// interface the sync cycle uses to report its milestones. Events are batched on
// a background goroutine and fanned out to pluggable sinks such as Prometheus
// metrics, structured logs or the run history store.
package progress
