// Package broker describes the minimal broker client surface the runtimes
// depend on (spec §1: "the broker client ... is assumed as a dependency and
// described only by the interface the runtimes consume"). The interface
// shape is modeled on sarama's Consumer/AsyncProducer split
// (Stars1233-sarama/consumer.go, signalfx-sarama/async_producer.go):
// a Client creates per-topic Consumers and Producers, each consumer exposes
// a receive channel plus an explicit Ack, and each producer exposes a
// blocking Send.
package broker

import (
	"context"
	"time"
)

// SubscriptionType mirrors the Rust SubscriptionType in
// danube-connect-core/src/config.rs.
type SubscriptionType int

const (
	Exclusive SubscriptionType = iota
	Shared
	FailOver
)

func (t SubscriptionType) String() string {
	switch t {
	case Exclusive:
		return "Exclusive"
	case Shared:
		return "Shared"
	case FailOver:
		return "FailOver"
	default:
		return "Unknown"
	}
}

// Message is a single broker-delivered message, the wire-level analogue of
// record.SinkRecord before the runtime wraps it.
type Message struct {
	Payload       []byte
	Attributes    map[string]string
	Topic         string
	Offset        uint64
	PublishTimeUs uint64
	MessageID     string
	ProducerName  string
	Partition     *string
}

// ConsumerConfig parameterizes Client.NewConsumer.
type ConsumerConfig struct {
	Topic            string
	Subscription     string
	ConsumerName     string
	SubscriptionType SubscriptionType
}

// ProducerConfig parameterizes Client.NewProducer.
type ProducerConfig struct {
	Topic            string
	Name             string
	Partitions       int
	ReliableDispatch bool
}

// Consumer receives messages for a single (topic, subscription) pair and
// acknowledges them once the runtime has safely processed them.
type Consumer interface {
	// Messages is the receive stream; it closes when the consumer is closed.
	Messages() <-chan *Message
	// Ack acknowledges a message as durably processed. Per spec §4.3, the
	// runtime acks messages in receive order after a successful flush.
	Ack(ctx context.Context, msg *Message) error
	// Topic returns the topic this consumer is subscribed to.
	Topic() string
	// Close releases the consumer. It does not drain in-flight Ack calls.
	Close() error
}

// Producer publishes messages to a single topic.
type Producer interface {
	// Send publishes payload with the given attributes, returning a
	// broker-assigned message id. key is an optional partition-routing hint
	// (spec §4.4); a Producer that does not support routing keys natively
	// may ignore it (the caller attaches it as an attribute in that case).
	Send(ctx context.Context, payload []byte, attributes map[string]string, key *string) (messageID string, err error)
	// Topic returns the destination topic.
	Topic() string
	// Close releases the producer.
	Close() error
}

// Client is the broker connection. The runtimes create at most one consumer
// or producer per (connector_name, topic) pair during a single lifetime
// (spec §3 invariant).
type Client interface {
	NewConsumer(ctx context.Context, cfg ConsumerConfig) (Consumer, error)
	NewProducer(ctx context.Context, cfg ProducerConfig) (Producer, error)
	Close() error
}

// ConnectTimeout is the default broker-connection timeout referenced by
// spec §5 ("Timeouts apply to: broker connection (configurable)").
const ConnectTimeout = 10 * time.Second
