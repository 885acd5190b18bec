// Package demoplugin provides reference SinkPlugin and SourcePlugin
// implementations for cmd/connector. Concrete connector plugins (Delta
// Lake, Qdrant, SurrealDB, MQTT, ...) are out of scope for this framework
// (spec §1); these two exist only so the CLI entrypoint has something to
// wire up and run end to end. A real connector binary replaces this package
// with its own plugin implementation and broker.Client.
package demoplugin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danube-messaging/danube-connect/config"
	"github.com/danube-messaging/danube-connect/internal/broker"
	"github.com/danube-messaging/danube-connect/plugin"
	"github.com/danube-messaging/danube-connect/record"
)

const defaultTopic = "/default/demo"

func pluginTopic(cfg *config.Config) string {
	if cfg.Plugin != nil {
		if t, ok := cfg.Plugin["topic"].(string); ok && t != "" {
			return t
		}
	}
	return defaultTopic
}

// LoggingSinkPlugin logs every batch it receives at info level and never
// fails, demonstrating the Sink Runtime's startup/flush/shutdown sequence
// without depending on a real external system.
type LoggingSinkPlugin struct {
	logger *zap.Logger
	topic  string
}

// NewLoggingSinkPlugin builds a LoggingSinkPlugin that logs through logger.
func NewLoggingSinkPlugin(logger *zap.Logger) *LoggingSinkPlugin {
	return &LoggingSinkPlugin{logger: logger}
}

var _ plugin.SinkPlugin = (*LoggingSinkPlugin)(nil)

func (p *LoggingSinkPlugin) Initialize(_ context.Context, cfg *config.Config) error {
	p.topic = pluginTopic(cfg)
	p.logger.Info("demo sink plugin initialized", zap.String("topic", p.topic))
	return nil
}

func (p *LoggingSinkPlugin) ConsumerConfigs(_ context.Context) ([]plugin.ConsumerConfig, error) {
	return []plugin.ConsumerConfig{{
		Topic:            p.topic,
		Subscription:     "demo-subscription",
		ConsumerName:     "demo-consumer",
		SubscriptionType: broker.Shared,
	}}, nil
}

func (p *LoggingSinkPlugin) ProcessBatch(_ context.Context, records []*record.SinkRecord) error {
	for _, rec := range records {
		p.logger.Info("processed record",
			zap.String("topic", rec.Topic()),
			zap.Uint64("offset", rec.Offset()),
			zap.Int("payload_size", rec.PayloadSize()),
		)
	}
	return nil
}

func (p *LoggingSinkPlugin) Shutdown(_ context.Context) error {
	p.logger.Info("demo sink plugin shutting down")
	return nil
}

// CounterSourcePlugin publishes an incrementing int64 counter to a single
// topic on every poll, demonstrating the Source Runtime's
// producer-creation/poll/publish/commit sequence without a real upstream.
type CounterSourcePlugin struct {
	logger *zap.Logger
	topic  string
	next   int64
}

// NewCounterSourcePlugin builds a CounterSourcePlugin that logs through logger.
func NewCounterSourcePlugin(logger *zap.Logger) *CounterSourcePlugin {
	return &CounterSourcePlugin{logger: logger}
}

var _ plugin.SourcePlugin = (*CounterSourcePlugin)(nil)

func (p *CounterSourcePlugin) Initialize(_ context.Context, cfg *config.Config) error {
	p.topic = pluginTopic(cfg)
	p.logger.Info("demo source plugin initialized", zap.String("topic", p.topic))
	return nil
}

func (p *CounterSourcePlugin) ProducerConfigs(_ context.Context) ([]plugin.ProducerConfig, error) {
	return []plugin.ProducerConfig{{Topic: p.topic, Partitions: 1, ReliableDispatch: true}}, nil
}

func (p *CounterSourcePlugin) Poll(_ context.Context) ([]*record.SourceRecord, error) {
	rec := record.NewSourceRecord(p.topic, record.Int64Payload(p.next))
	rec.WithAttribute("seq", fmt.Sprintf("%d", p.next))
	p.next++
	return []*record.SourceRecord{rec}, nil
}

func (p *CounterSourcePlugin) Commit(_ context.Context, offsets []record.Offset) error {
	for _, off := range offsets {
		p.logger.Debug("committed offset", zap.String("topic", off.Topic), zap.Uint64("position", off.Position))
	}
	return nil
}

func (p *CounterSourcePlugin) Shutdown(_ context.Context) error {
	p.logger.Info("demo source plugin shutting down")
	return nil
}
