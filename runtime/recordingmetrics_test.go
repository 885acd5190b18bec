package runtime

import (
	"sync"
	"time"

	"github.com/danube-messaging/danube-connect/metrics"
)

var _ metrics.Sink = (*recordingMetrics)(nil)

// recordingMetrics implements metrics.Sink with plain counters, for
// asserting on the counters spec §8's end-to-end scenarios name. Its
// histogram methods record nothing.
type recordingMetrics struct {
	mu        sync.Mutex
	received  map[string]int
	succeeded map[string]int
	invalid   map[string]int
	retried   map[string]int
	errored   map[string]int
	healthy   bool
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		received:  map[string]int{},
		succeeded: map[string]int{},
		invalid:   map[string]int{},
		retried:   map[string]int{},
		errored:   map[string]int{},
	}
}

func (m *recordingMetrics) inc(bucket map[string]int, topic string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket[topic] += n
}

func (m *recordingMetrics) IncReceived(topic string, n int)  { m.inc(m.received, topic, n) }
func (m *recordingMetrics) IncSucceeded(topic string, n int) { m.inc(m.succeeded, topic, n) }
func (m *recordingMetrics) IncInvalid(topic string, n int)   { m.inc(m.invalid, topic, n) }
func (m *recordingMetrics) IncRetried(topic string, n int)   { m.inc(m.retried, topic, n) }
func (m *recordingMetrics) IncErrored(topic string, n int)   { m.inc(m.errored, topic, n) }

func (m *recordingMetrics) ObserveBatchSize(string, int)             {}
func (m *recordingMetrics) ObserveProcessingDuration(string, time.Duration) {}

func (m *recordingMetrics) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

func (m *recordingMetrics) Received(topic string) int  { return m.get(m.received, topic) }
func (m *recordingMetrics) Succeeded(topic string) int { return m.get(m.succeeded, topic) }
func (m *recordingMetrics) Invalid(topic string) int   { return m.get(m.invalid, topic) }
func (m *recordingMetrics) Retried(topic string) int   { return m.get(m.retried, topic) }
func (m *recordingMetrics) Errored(topic string) int   { return m.get(m.errored, topic) }

func (m *recordingMetrics) get(bucket map[string]int, topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bucket[topic]
}
