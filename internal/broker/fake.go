package broker

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is an in-memory Client used by this module's own runtime tests,
// the same role Stars1233-sarama and signalfx-sarama fill with their own
// mock broker types in their test suites. cmd/connector also runs against it
// in demo mode, since a real broker driver is outside this framework's scope
// (spec §1) — any production connector binary supplies its own Client.
type FakeClient struct {
	mu        sync.Mutex
	consumers map[string]*FakeConsumer
	producers map[string]*FakeProducer
	closed    bool

	// OnProducerCreated, if set, is invoked synchronously inside NewProducer
	// before it returns — the hook a test uses to install a FakeProducer's
	// SendFunc before the runtime's poll loop can race with it.
	OnProducerCreated func(*FakeProducer)
}

// NewFakeClient builds an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		consumers: make(map[string]*FakeConsumer),
		producers: make(map[string]*FakeProducer),
	}
}

var _ Client = (*FakeClient)(nil)

// NewConsumer creates a FakeConsumer for cfg.Topic. A second consumer for
// the same topic would violate the at-most-once invariant, so that call
// returns an error.
func (c *FakeClient) NewConsumer(_ context.Context, cfg ConsumerConfig) (Consumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.consumers[cfg.Topic]; exists {
		return nil, fmt.Errorf("fake broker: consumer for topic %s already exists", cfg.Topic)
	}
	fc := &FakeConsumer{
		topic:    cfg.Topic,
		messages: make(chan *Message, 256),
	}
	c.consumers[cfg.Topic] = fc
	return fc, nil
}

// NewProducer creates a FakeProducer for cfg.Topic.
func (c *FakeClient) NewProducer(_ context.Context, cfg ProducerConfig) (Producer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.producers[cfg.Topic]; exists {
		return nil, fmt.Errorf("fake broker: producer for topic %s already exists", cfg.Topic)
	}
	fp := &FakeProducer{topic: cfg.Topic, name: cfg.Name}
	c.producers[cfg.Topic] = fp
	if c.OnProducerCreated != nil {
		c.OnProducerCreated(fp)
	}
	return fp, nil
}

// Close closes every consumer and producer this client created.
func (c *FakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, con := range c.consumers {
		_ = con.Close()
	}
	for _, p := range c.producers {
		_ = p.Close()
	}
	return nil
}

// Consumer returns the FakeConsumer for topic, for test setup, or nil.
func (c *FakeClient) Consumer(topic string) *FakeConsumer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumers[topic]
}

// Producer returns the FakeProducer for topic, for test assertions, or nil.
func (c *FakeClient) Producer(topic string) *FakeProducer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producers[topic]
}

// FakeConsumer is an in-memory Consumer. Tests call Deliver to simulate the
// broker pushing a message, and read Acked() to assert acknowledgement
// order.
type FakeConsumer struct {
	topic    string
	messages chan *Message

	mu     sync.Mutex
	acked  []*Message
	closed bool
}

var _ Consumer = (*FakeConsumer)(nil)

// Deliver simulates the broker delivering msg to this consumer.
func (c *FakeConsumer) Deliver(msg *Message) {
	c.messages <- msg
}

func (c *FakeConsumer) Messages() <-chan *Message { return c.messages }

func (c *FakeConsumer) Ack(_ context.Context, msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, msg)
	return nil
}

// Acked returns every message Ack has been called with, in call order.
func (c *FakeConsumer) Acked() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Message, len(c.acked))
	copy(out, c.acked)
	return out
}

func (c *FakeConsumer) Topic() string { return c.topic }

func (c *FakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.messages)
	}
	return nil
}

// SentMessage records one FakeProducer.Send call.
type SentMessage struct {
	Payload    []byte
	Attributes map[string]string
	Key        *string
	MessageID  string
}

// FakeProducer is an in-memory Producer. Tests may set SendFunc to inject
// failures; the default behavior records the message and succeeds.
type FakeProducer struct {
	topic string
	name  string

	// SendFunc, if set, is invoked instead of the default record-and-succeed
	// behavior. It still has its successful sends appended to Sent().
	SendFunc func(ctx context.Context, payload []byte, attributes map[string]string, key *string) (string, error)

	mu      sync.Mutex
	sent    []SentMessage
	nextSeq int
}

var _ Producer = (*FakeProducer)(nil)

func (p *FakeProducer) Send(ctx context.Context, payload []byte, attributes map[string]string, key *string) (string, error) {
	if p.SendFunc != nil {
		id, err := p.SendFunc(ctx, payload, attributes, key)
		if err != nil {
			return "", err
		}
		p.record(payload, attributes, key, id)
		return id, nil
	}

	p.mu.Lock()
	id := fmt.Sprintf("%s-%d", p.topic, p.nextSeq)
	p.nextSeq++
	p.mu.Unlock()

	p.record(payload, attributes, key, id)
	return id, nil
}

func (p *FakeProducer) record(payload []byte, attributes map[string]string, key *string, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, SentMessage{Payload: payload, Attributes: attributes, Key: key, MessageID: id})
}

// Sent returns every message successfully sent through this producer, in
// send order.
func (p *FakeProducer) Sent() []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SentMessage, len(p.sent))
	copy(out, p.sent)
	return out
}

func (p *FakeProducer) Topic() string { return p.topic }

func (p *FakeProducer) Close() error { return nil }
