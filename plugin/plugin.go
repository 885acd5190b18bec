// Package plugin defines the two capability contracts user connectors
// implement: SinkPlugin (broker -> external system) and SourcePlugin
// (external system -> broker). These are the binary interface between the
// core and connector implementations (spec §4.1, §6).
package plugin

import (
	"context"

	"github.com/danube-messaging/danube-connect/config"
	"github.com/danube-messaging/danube-connect/internal/broker"
	"github.com/danube-messaging/danube-connect/record"
)

// ConsumerConfig describes one consumer a SinkPlugin wants the runtime to
// create. The runtime creates exactly these consumers at startup (spec §4.3
// step 4).
type ConsumerConfig struct {
	Topic            string
	Subscription     string
	ConsumerName     string
	SubscriptionType broker.SubscriptionType
}

// ProducerConfig describes one producer a SourcePlugin wants the runtime to
// create upfront. Publishing to a topic not in this list is a Fatal error
// (spec §4.1).
type ProducerConfig struct {
	Topic            string
	Partitions       int
	ReliableDispatch bool
}

// SinkPlugin is implemented by connectors that write broker records to an
// external system. Every method may suspend (I/O allowed) and all are
// invoked serially per runtime (spec §4.1).
type SinkPlugin interface {
	// Initialize is called once before any records are delivered. It must
	// be idempotent under restart.
	Initialize(ctx context.Context, cfg *config.Config) error
	// ConsumerConfigs determines which consumers the runtime creates.
	ConsumerConfigs(ctx context.Context) ([]ConsumerConfig, error)
	// ProcessBatch receives a non-empty batch drawn from a single topic.
	// The plugin is responsible for transactional semantics to the
	// external system; the runtime guarantees at-least-once delivery to
	// this method.
	ProcessBatch(ctx context.Context, records []*record.SinkRecord) error
	// Shutdown must flush all in-flight writes.
	Shutdown(ctx context.Context) error
}

// SourcePlugin is implemented by connectors that read an external system
// and publish to broker topics.
type SourcePlugin interface {
	Initialize(ctx context.Context, cfg *config.Config) error
	// ProducerConfigs returns the producers the runtime creates upfront.
	ProducerConfigs(ctx context.Context) ([]ProducerConfig, error)
	// Poll may return an empty slice; an empty result causes the runtime to
	// sleep processing.poll_interval_ms before re-polling.
	Poll(ctx context.Context) ([]*record.SourceRecord, error)
	// Commit is called after the batch is fully published.
	Commit(ctx context.Context, offsets []record.Offset) error
	Shutdown(ctx context.Context) error
}
