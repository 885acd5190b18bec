package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink backs Sink with github.com/prometheus/client_golang vectors
// labeled natively by connector_name and topic, and serves them on
// metrics_port (spec §6's "TCP port for metrics scrape endpoint").
type PrometheusSink struct {
	connectorName string

	received  *prometheus.CounterVec
	succeeded *prometheus.CounterVec
	invalid   *prometheus.CounterVec
	retried   *prometheus.CounterVec
	errored   *prometheus.CounterVec

	batchSize    *prometheus.HistogramVec
	processingMs *prometheus.HistogramVec

	healthy prometheus.Gauge

	server *http.Server
}

var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink registers a fresh vector set against a private registry
// (so multiple connector instances in one process don't collide) under
// connectorName.
func NewPrometheusSink(connectorName string) *PrometheusSink {
	registry := prometheus.NewRegistry()

	labels := []string{"connector_name", "topic"}
	counter := func(name, help string) *prometheus.CounterVec {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
		registry.MustRegister(cv)
		return cv
	}
	histogram := func(name, help string, buckets []float64) *prometheus.HistogramVec {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
		registry.MustRegister(hv)
		return hv
	}

	healthy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "healthy",
		Help:        "1 if the connector runtime is healthy, 0 otherwise",
		ConstLabels: prometheus.Labels{"connector_name": connectorName},
	})
	registry.MustRegister(healthy)

	s := &PrometheusSink{
		connectorName: connectorName,
		received:      counter("messages_received", "total messages received from the broker"),
		succeeded:     counter("messages_succeeded", "total messages successfully processed"),
		invalid:       counter("messages_invalid", "total messages classified InvalidData"),
		retried:       counter("messages_retried", "total messages retried, counted once per message per retry"),
		errored:       counter("messages_errored", "total messages that ended in a terminal error"),
		batchSize:     histogram("batch_size", "size of batches delivered to a plugin", prometheus.LinearBuckets(1, 10, 10)),
		processingMs:  histogram("processing_duration_ms", "plugin processing duration in ms", prometheus.ExponentialBuckets(1, 2, 12)),
		healthy:       healthy,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.server = &http.Server{Handler: mux}

	return s
}

// Serve listens on the given TCP port and serves /metrics until ctx is
// canceled. It blocks; callers run it in its own goroutine.
func (s *PrometheusSink) Serve(ctx context.Context, port int) error {
	ln, err := newListener(port)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	err = s.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *PrometheusSink) IncReceived(topic string, n int) {
	s.received.WithLabelValues(s.connectorName, topic).Add(float64(n))
}
func (s *PrometheusSink) IncSucceeded(topic string, n int) {
	s.succeeded.WithLabelValues(s.connectorName, topic).Add(float64(n))
}
func (s *PrometheusSink) IncInvalid(topic string, n int) {
	s.invalid.WithLabelValues(s.connectorName, topic).Add(float64(n))
}
func (s *PrometheusSink) IncRetried(topic string, n int) {
	s.retried.WithLabelValues(s.connectorName, topic).Add(float64(n))
}
func (s *PrometheusSink) IncErrored(topic string, n int) {
	s.errored.WithLabelValues(s.connectorName, topic).Add(float64(n))
}

func (s *PrometheusSink) ObserveBatchSize(topic string, size int) {
	s.batchSize.WithLabelValues(s.connectorName, topic).Observe(float64(size))
}

func (s *PrometheusSink) ObserveProcessingDuration(topic string, d time.Duration) {
	s.processingMs.WithLabelValues(s.connectorName, topic).Observe(float64(d.Milliseconds()))
}

func (s *PrometheusSink) SetHealthy(healthy bool) {
	if healthy {
		s.healthy.Set(1)
	} else {
		s.healthy.Set(0)
	}
}
