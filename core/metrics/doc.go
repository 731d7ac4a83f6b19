// Package metrics defines the sinks that record control decisions and
// optimizer activity for observability. PromSink and InfluxSink live in
// infra/metrics; several sinks are combined with NewMultiSink, which the
// factory helpers return automatically when more than one sink is
// configured. Optional recorder interfaces are detected by type assertion.
package metrics
