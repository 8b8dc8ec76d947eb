// Package progress carries run progress out of discovery and the pipeline.
// Emitters never block: events are batched on a background goroutine and fanned
// out to sinks that keep the run ledger, Prometheus counters and the live
// /progress snapshot current.
package progress
