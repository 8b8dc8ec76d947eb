// Package sinks implements the progress consumers: the run ledger, Prometheus
// counters, the live snapshot behind /progress, and structured logging.
package sinks
