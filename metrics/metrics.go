// Package metrics defines the connector framework's observability surface
// (spec §4.5): counters for received/succeeded/invalid/retried/errored
// messages, histograms for batch size and processing latency, and a health
// gauge. Sink is the interface both runtimes depend on; Noop, GoMetricsSink,
// and PrometheusSink are the three concrete implementations this module
// ships.
package metrics

import "time"

// Sink is the metrics emission surface. All methods must be safe for
// concurrent use from multiple topics' goroutines.
type Sink interface {
	// IncReceived increments messages_received for topic.
	IncReceived(topic string, n int)
	// IncSucceeded increments messages_succeeded for topic.
	IncSucceeded(topic string, n int)
	// IncInvalid increments messages_invalid for topic.
	IncInvalid(topic string, n int)
	// IncRetried increments messages_retried for topic.
	IncRetried(topic string, n int)
	// IncErrored increments messages_errored for topic.
	IncErrored(topic string, n int)
	// ObserveBatchSize records a flushed/published batch's size for topic.
	ObserveBatchSize(topic string, size int)
	// ObserveProcessingDuration records how long a plugin call took for topic.
	ObserveProcessingDuration(topic string, d time.Duration)
	// SetHealthy sets the healthy gauge to 1 (true) or 0 (false).
	SetHealthy(healthy bool)
}

// labelled namespaces a metric name by connector_name and topic, matching
// spec §4.5's "all counters are labeled by connector_name and topic" for
// backends without native label dimensions.
func labelled(connectorName, metric, topic string) string {
	return connectorName + "." + metric + "." + topic
}
