package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danube-messaging/danube-connect/config"
	"github.com/danube-messaging/danube-connect/internal/broker"
	"github.com/danube-messaging/danube-connect/plugin"
	"github.com/danube-messaging/danube-connect/record"
)

// errBoom is a sentinel failure used by source runtime tests to simulate an
// unclassified broker.Producer.Send error (connerr.Classify demotes it to
// Retryable, the conservative default).
var errBoom = errors.New("boom")

// testConfig builds a minimally valid Config for runtime tests, overridden
// per test via the returned pointer.
func testConfig() *config.Config {
	return &config.Config{
		DanubeServiceURL: "http://localhost:6650",
		ConnectorName:    "test-connector",
		Retry: config.RetryConfig{
			MaxRetries:    3,
			BaseBackoffMs: 10,
			MaxBackoffMs:  1000,
		},
		Processing: config.ProcessingConfig{
			BatchSize:      10,
			BatchTimeoutMs: 10000,
			PollIntervalMs: 10,
			LogLevel:       "error",
		},
		MetricsPort: 0,
	}
}

func newMessage(topic string, offset uint64, payload []byte) *broker.Message {
	return &broker.Message{
		Payload:       payload,
		Attributes:    map[string]string{},
		Topic:         topic,
		Offset:        offset,
		PublishTimeUs: uint64(offset) * 1000,
		MessageID:     fmt.Sprintf("%s-%d", topic, offset),
		ProducerName:  "test-producer",
	}
}

// stubSinkPlugin is a SinkPlugin whose ProcessBatch behavior is injected by
// the test, and which records every call for assertions.
type stubSinkPlugin struct {
	consumerCfgs []plugin.ConsumerConfig
	onBatch      func(records []*record.SinkRecord) error

	mu            sync.Mutex
	batches       [][]*record.SinkRecord
	shutdownCalls int
}

var _ plugin.SinkPlugin = (*stubSinkPlugin)(nil)

func (p *stubSinkPlugin) Initialize(context.Context, *config.Config) error { return nil }

func (p *stubSinkPlugin) ConsumerConfigs(context.Context) ([]plugin.ConsumerConfig, error) {
	return p.consumerCfgs, nil
}

func (p *stubSinkPlugin) ProcessBatch(_ context.Context, records []*record.SinkRecord) error {
	p.mu.Lock()
	cp := make([]*record.SinkRecord, len(records))
	copy(cp, records)
	p.batches = append(p.batches, cp)
	p.mu.Unlock()
	if p.onBatch != nil {
		return p.onBatch(records)
	}
	return nil
}

func (p *stubSinkPlugin) Shutdown(context.Context) error {
	p.mu.Lock()
	p.shutdownCalls++
	p.mu.Unlock()
	return nil
}

func (p *stubSinkPlugin) BatchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func (p *stubSinkPlugin) Batches() [][]*record.SinkRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]*record.SinkRecord, len(p.batches))
	copy(out, p.batches)
	return out
}

func (p *stubSinkPlugin) ShutdownCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdownCalls
}

// stubSourcePlugin is a SourcePlugin whose Poll results are a fixed
// sequence; once exhausted it returns an empty result forever, matching the
// "empty causes the runtime to sleep" contract (spec §4.1).
type stubSourcePlugin struct {
	producerCfgs []plugin.ProducerConfig
	pollResults  [][]*record.SourceRecord

	mu            sync.Mutex
	pollIdx       int
	commits       [][]record.Offset
	shutdownCalls int
}

var _ plugin.SourcePlugin = (*stubSourcePlugin)(nil)

func (p *stubSourcePlugin) Initialize(context.Context, *config.Config) error { return nil }

func (p *stubSourcePlugin) ProducerConfigs(context.Context) ([]plugin.ProducerConfig, error) {
	return p.producerCfgs, nil
}

func (p *stubSourcePlugin) Poll(context.Context) ([]*record.SourceRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pollIdx < len(p.pollResults) {
		r := p.pollResults[p.pollIdx]
		p.pollIdx++
		return r, nil
	}
	return nil, nil
}

func (p *stubSourcePlugin) Commit(_ context.Context, offsets []record.Offset) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]record.Offset, len(offsets))
	copy(cp, offsets)
	p.commits = append(p.commits, cp)
	return nil
}

func (p *stubSourcePlugin) Shutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdownCalls++
	return nil
}

func (p *stubSourcePlugin) Commits() [][]record.Offset {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]record.Offset, len(p.commits))
	copy(out, p.commits)
	return out
}
