package metrics

import (
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// GoMetricsSink backs Sink with a github.com/rcrowley/go-metrics registry,
// one per connector. go-metrics has no native label dimension, so labels
// are folded into the registered metric name — the same convention
// Stars1233-sarama/consumer.go uses when it registers per-client counters
// against a shared metrics.Registry.
type GoMetricsSink struct {
	connectorName string
	registry      gometrics.Registry

	mu      sync.Mutex
	healthy gometrics.Gauge
}

// NewGoMetricsSink builds a GoMetricsSink registered under connectorName.
func NewGoMetricsSink(connectorName string) *GoMetricsSink {
	registry := gometrics.NewRegistry()
	return &GoMetricsSink{
		connectorName: connectorName,
		registry:      registry,
		healthy:       gometrics.GetOrRegisterGauge(connectorName+".healthy", registry),
	}
}

// Registry exposes the underlying go-metrics registry, e.g. for a
// metrics.Log or metrics.WriteJSON reporter.
func (s *GoMetricsSink) Registry() gometrics.Registry { return s.registry }

var _ Sink = (*GoMetricsSink)(nil)

func (s *GoMetricsSink) counter(metric, topic string) gometrics.Counter {
	return gometrics.GetOrRegisterCounter(labelled(s.connectorName, metric, topic), s.registry)
}

func (s *GoMetricsSink) histogram(metric, topic string) gometrics.Histogram {
	return gometrics.GetOrRegisterHistogram(
		labelled(s.connectorName, metric, topic), s.registry,
		gometrics.NewUniformSample(1028),
	)
}

func (s *GoMetricsSink) IncReceived(topic string, n int) { s.counter("messages_received", topic).Inc(int64(n)) }
func (s *GoMetricsSink) IncSucceeded(topic string, n int) {
	s.counter("messages_succeeded", topic).Inc(int64(n))
}
func (s *GoMetricsSink) IncInvalid(topic string, n int) { s.counter("messages_invalid", topic).Inc(int64(n)) }
func (s *GoMetricsSink) IncRetried(topic string, n int) { s.counter("messages_retried", topic).Inc(int64(n)) }
func (s *GoMetricsSink) IncErrored(topic string, n int) { s.counter("messages_errored", topic).Inc(int64(n)) }

func (s *GoMetricsSink) ObserveBatchSize(topic string, size int) {
	s.histogram("batch_size", topic).Update(int64(size))
}

func (s *GoMetricsSink) ObserveProcessingDuration(topic string, d time.Duration) {
	s.histogram("processing_duration_ms", topic).Update(d.Milliseconds())
}

func (s *GoMetricsSink) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if healthy {
		s.healthy.Update(1)
	} else {
		s.healthy.Update(0)
	}
}
