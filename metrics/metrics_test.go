package metrics

import (
	"testing"
	"time"
)

func TestNoop_SatisfiesSink(t *testing.T) {
	var s Sink = Noop{}
	s.IncReceived("t", 1)
	s.IncSucceeded("t", 1)
	s.IncInvalid("t", 1)
	s.IncRetried("t", 1)
	s.IncErrored("t", 1)
	s.ObserveBatchSize("t", 3)
	s.ObserveProcessingDuration("t", time.Millisecond)
	s.SetHealthy(true)
}

func TestGoMetricsSink_Counters(t *testing.T) {
	sink := NewGoMetricsSink("test-connector")
	var s Sink = sink

	s.IncReceived("/t1", 3)
	s.IncSucceeded("/t1", 2)
	s.IncErrored("/t1", 1)
	s.SetHealthy(true)

	received := sink.counter("messages_received", "/t1")
	if got := received.Count(); got != 3 {
		t.Errorf("messages_received count = %d, want 3", got)
	}
	succeeded := sink.counter("messages_succeeded", "/t1")
	if got := succeeded.Count(); got != 2 {
		t.Errorf("messages_succeeded count = %d, want 2", got)
	}
}

func TestGoMetricsSink_Histograms(t *testing.T) {
	sink := NewGoMetricsSink("test-connector")
	sink.ObserveBatchSize("/t1", 5)
	sink.ObserveBatchSize("/t1", 10)

	h := sink.histogram("batch_size", "/t1")
	if h.Count() != 2 {
		t.Errorf("histogram count = %d, want 2", h.Count())
	}
	if h.Max() != 10 {
		t.Errorf("histogram max = %d, want 10", h.Max())
	}
}
