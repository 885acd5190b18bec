package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/go-resiliency/breaker"
	"go.uber.org/zap"

	"github.com/danube-messaging/danube-connect/config"
	"github.com/danube-messaging/danube-connect/connerr"
	"github.com/danube-messaging/danube-connect/internal/broker"
	"github.com/danube-messaging/danube-connect/metrics"
	"github.com/danube-messaging/danube-connect/plugin"
	"github.com/danube-messaging/danube-connect/record"
	"github.com/danube-messaging/danube-connect/retry"
)

// flushPollInterval bounds how often the time-based flusher re-checks a
// topic's age against its batch timeout. It is the implementation-defined
// epsilon from spec §8 ("no record remains in a buffer longer than
// effective_batch_timeout(t) + ε for ... ε ≤ 50 ms").
const flushPollInterval = 10 * time.Millisecond

// DeadLetterHandler is an optional hook invoked when a batch exhausts
// retries and is counted as terminally errored. The framework does not
// implement a dead-letter queue (spec §1 non-goal); this only gives callers
// a place to forward the batch themselves.
type DeadLetterHandler func(ctx context.Context, topic string, records []*record.SinkRecord, cause error)

// SinkOption configures a SinkRuntime at construction time.
type SinkOption func(*SinkRuntime)

// WithMetrics overrides the default no-op metrics.Sink.
func WithMetrics(m metrics.Sink) SinkOption {
	return func(r *SinkRuntime) { r.metrics = m }
}

// WithLogger overrides the default no-op zap.Logger.
func WithLogger(l *zap.Logger) SinkOption {
	return func(r *SinkRuntime) { r.logger = l }
}

// WithDeadLetterHandler installs a DeadLetterHandler, invoked after a
// batch's retries are exhausted and it has been counted as errored.
func WithDeadLetterHandler(h DeadLetterHandler) SinkOption {
	return func(r *SinkRuntime) { r.deadLetter = h }
}

// WithBreaker wraps the retry policy in a retry.BreakerPolicy: after
// errorThreshold consecutive ProcessBatch failures the breaker trips open
// for timeout, failing fast instead of retrying into a destination that is
// clearly down, until successThreshold consecutive successes close it again.
func WithBreaker(errorThreshold, successThreshold int, timeout time.Duration) SinkOption {
	return func(r *SinkRuntime) {
		r.breaker = retry.NewBreakerPolicy(r.policy, errorThreshold, successThreshold, timeout)
	}
}

// SinkRuntime subscribes N consumers, dispatches records into per-topic
// buffers, batches by size/time, invokes the plugin, retries, and
// acknowledges (spec §4.3).
type SinkRuntime struct {
	cfg     *config.Config
	client  broker.Client
	plugin  plugin.SinkPlugin
	policy  retry.Policy
	breaker *retry.BreakerPolicy

	metrics    metrics.Sink
	logger     *zap.Logger
	deadLetter DeadLetterHandler

	state atomic.Int32

	consumers map[string]broker.Consumer
	buffers   map[string]*topicBuffer

	events chan taggedMessage
	wg     sync.WaitGroup
}

type taggedMessage struct {
	topic string
	msg   *broker.Message
}

// NewSinkRuntime builds a SinkRuntime. cfg must already satisfy Validate();
// NewSinkRuntime re-validates and returns a Config error otherwise.
func NewSinkRuntime(cfg *config.Config, client broker.Client, sinkPlugin plugin.SinkPlugin, opts ...SinkOption) (*SinkRuntime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &SinkRuntime{
		cfg:    cfg,
		client: client,
		plugin: sinkPlugin,
		policy: retry.Policy{
			MaxRetries:  cfg.Retry.MaxRetries,
			BaseBackoff: cfg.Retry.BaseBackoff(),
			MaxBackoff:  cfg.Retry.MaxBackoff(),
		},
		metrics:   metrics.Noop{},
		logger:    zap.NewNop(),
		consumers: make(map[string]broker.Consumer),
		buffers:   make(map[string]*topicBuffer),
		events:    make(chan taggedMessage, 1024),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// State reports the runtime's current lifecycle stage.
func (r *SinkRuntime) State() State { return State(r.state.Load()) }

func (r *SinkRuntime) setState(s State) { r.state.Store(int32(s)) }

// Run executes the full lifecycle: startup, main loop until ctx is canceled,
// drain, and plugin shutdown (spec §4.3). It returns the first Fatal error
// encountered, or nil on a clean shutdown.
func (r *SinkRuntime) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	if err := r.startup(runCtx); err != nil {
		cancel()
		return err
	}
	r.setState(StateRunning)
	r.metrics.SetHealthy(true)

	runErr := r.mainLoop(runCtx)

	// Stop receiveLoop/timeFlusher now: mainLoop can return on a Fatal
	// plugin error with the caller's ctx still live, and drain's wg.Wait()
	// would otherwise block forever waiting on goroutines that only watch
	// ctx.Done() (spec §4.2: Fatal must still terminate the runtime).
	cancel()

	r.setState(StateDraining)
	// Plugin/broker calls made while draining must not be aborted by the
	// same cancellation that triggered the drain (spec §5: "on cancellation
	// during process_batch, the runtime awaits its completion ... then
	// drains"). context.WithoutCancel detaches propagation while keeping
	// request-scoped values, so a plugin honoring ctx.Done() doesn't see an
	// already-canceled context during shutdown.
	drainCtx := context.WithoutCancel(ctx)
	r.drain(drainCtx)

	if shutdownErr := r.plugin.Shutdown(drainCtx); shutdownErr != nil {
		r.logger.Error("plugin shutdown failed", zap.Error(shutdownErr))
		if runErr == nil {
			runErr = shutdownErr
		}
	}

	r.metrics.SetHealthy(false)
	r.setState(StateStopped)
	return runErr
}

func (r *SinkRuntime) startup(ctx context.Context) error {
	if err := r.plugin.Initialize(ctx, r.cfg); err != nil {
		return connerr.Classify(err)
	}

	consumerConfigs, err := r.plugin.ConsumerConfigs(ctx)
	if err != nil {
		return connerr.Classify(err)
	}
	if len(consumerConfigs) == 0 {
		return connerr.Configf(nil, "no consumer configurations provided by plugin")
	}

	for _, cc := range consumerConfigs {
		consumer, err := r.client.NewConsumer(ctx, broker.ConsumerConfig{
			Topic:            cc.Topic,
			Subscription:     cc.Subscription,
			ConsumerName:     cc.ConsumerName,
			SubscriptionType: cc.SubscriptionType,
		})
		if err != nil {
			return connerr.Fatalf(err, "failed to create consumer for topic %s", cc.Topic)
		}
		r.consumers[cc.Topic] = consumer
		r.buffers[cc.Topic] = newTopicBuffer()
	}

	// Only start the per-topic goroutines once every topic's r.consumers/
	// r.buffers entry exists: receiveLoop and timeFlusher read those maps by
	// topic key, so starting them interleaved with the map-population loop
	// above would race an earlier topic's goroutine reads against a later
	// topic's map writes.
	for _, cc := range consumerConfigs {
		r.wg.Add(1)
		go r.receiveLoop(ctx, r.consumers[cc.Topic])

		r.wg.Add(1)
		go r.timeFlusher(ctx, cc.Topic)
	}

	r.setState(StateInitialized)
	return nil
}

// receiveLoop is the per-consumer suspension point of spec §5 ("broker
// consumer receive"). Each consumer gets its own goroutine; all of them fan
// into the shared events channel so the main loop can fairly interleave
// across topics (mirrors Stars1233-sarama's brokerConsumer fanning multiple
// partitionConsumers into one dispatcher).
func (r *SinkRuntime) receiveLoop(ctx context.Context, consumer broker.Consumer) {
	defer r.wg.Done()
	topic := consumer.Topic()
	for {
		select {
		case msg, ok := <-consumer.Messages():
			if !ok {
				return
			}
			select {
			case r.events <- taggedMessage{topic: topic, msg: msg}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// timeFlusher is the concurrent per-topic task spec §5 requires: it flushes
// a topic whenever its oldest record has waited >= effective_batch_timeout.
func (r *SinkRuntime) timeFlusher(ctx context.Context, topic string) {
	defer r.wg.Done()
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			timeout := r.cfg.Processing.EffectiveBatchTimeout(topic)
			if timeout <= 0 {
				continue
			}
			if r.buffers[topic].age() >= timeout {
				r.flush(ctx, topic)
			}
		}
	}
}

// mainLoop receives the next message from any consumer (fair interleave
// across topics, spec §4.3) until ctx is canceled.
func (r *SinkRuntime) mainLoop(ctx context.Context) error {
	for {
		select {
		case tm := <-r.events:
			if err := r.handleMessage(ctx, tm); err != nil {
				return err
			}
		case <-ctx.Done():
			// select above races r.events against ctx.Done(): once ctx is
			// canceled, Go picks either arm at random, so messages
			// receiveLoop already forwarded into r.events before shutdown
			// can be skipped entirely. Drain whatever is already buffered
			// into its topic's buffer (no flush — the caller's imminent
			// drain() pass, run under its own detached context, flushes
			// everything) so those records still reach the plugin instead
			// of being silently lost.
			r.drainPendingEvents()
			return nil
		}
	}
}

// drainPendingEvents pulls every message already sitting in r.events into
// its topic's buffer without flushing, since ctx is already canceled here.
func (r *SinkRuntime) drainPendingEvents() {
	for {
		select {
		case tm := <-r.events:
			r.buffers[tm.topic].append(toSinkRecord(tm), tm.msg)
			r.metrics.IncReceived(tm.topic, 1)
		default:
			return
		}
	}
}

// toSinkRecord builds the SinkRecord a taggedMessage backs (spec §3).
func toSinkRecord(tm taggedMessage) *record.SinkRecord {
	var partition *string
	if tm.msg.Partition != nil {
		p := *tm.msg.Partition
		partition = &p
	}
	return record.NewSinkRecord(tm.msg.Payload, tm.msg.Attributes, record.Metadata{
		Topic:         tm.msg.Topic,
		Offset:        tm.msg.Offset,
		PublishTimeUs: tm.msg.PublishTimeUs,
		MessageID:     tm.msg.MessageID,
		ProducerName:  tm.msg.ProducerName,
	}, partition)
}

func (r *SinkRuntime) handleMessage(ctx context.Context, tm taggedMessage) error {
	rec := toSinkRecord(tm)
	r.metrics.IncReceived(tm.topic, 1)

	size := r.buffers[tm.topic].append(rec, tm.msg)
	if size >= r.cfg.Processing.EffectiveBatchSize(tm.topic) {
		return r.flush(ctx, tm.topic)
	}
	return nil
}

// flush detaches topic's buffer and invokes the plugin under the retry
// strategy, acknowledging on success and counting + optionally
// dead-lettering on terminal failure. It returns a non-nil error only for a
// Fatal plugin result, which unwinds the main loop into drain+shutdown.
func (r *SinkRuntime) flush(ctx context.Context, topic string) error {
	buf := r.buffers[topic]
	buf.flushMu.Lock()
	defer buf.flushMu.Unlock()

	recs, msgs := buf.detach()
	if len(recs) == 0 {
		return nil
	}

	r.metrics.ObserveBatchSize(topic, len(recs))
	start := time.Now()
	err := r.processBatchWithRetry(ctx, topic, recs)
	r.metrics.ObserveProcessingDuration(topic, time.Since(start))

	if err == nil {
		for _, msg := range msgs {
			if ackErr := r.consumers[topic].Ack(ctx, msg); ackErr != nil {
				r.logger.Error("ack failed", zap.String("topic", topic), zap.String("message_id", msg.MessageID), zap.Error(ackErr))
			}
		}
		r.metrics.IncSucceeded(topic, len(recs))
		return nil
	}

	ce := connerr.Classify(err)
	switch ce.Kind() {
	case connerr.Fatal:
		r.logger.Error("fatal error processing batch", zap.String("topic", topic), zap.Error(ce))
		return ce
	case connerr.InvalidData:
		for _, msg := range msgs {
			if ackErr := r.consumers[topic].Ack(ctx, msg); ackErr != nil {
				r.logger.Error("ack failed", zap.String("topic", topic), zap.String("message_id", msg.MessageID), zap.Error(ackErr))
			}
		}
		r.metrics.IncInvalid(topic, len(recs))
		return nil
	default:
		// Retryable and exhausted, or a Config-kinded plugin error.
		r.metrics.IncErrored(topic, len(recs))
		messageIDs := make([]string, len(msgs))
		for i, msg := range msgs {
			messageIDs[i] = msg.MessageID
		}
		r.logger.Error("batch exhausted retries, not acknowledged", zap.String("topic", topic), zap.Int("size", len(recs)), zap.Strings("message_ids", messageIDs), zap.Error(ce))
		if r.deadLetter != nil {
			r.deadLetter(ctx, topic, recs, ce)
		}
		return nil
	}
}

// processBatchWithRetry implements spec §4.2's retry schedule around a
// single ProcessBatch call: backoff for attempt N (1-indexed, N being the
// count of failures so far) is min(base*2^(N-1), max); retry is declined
// once N exceeds max_retries or the error is not Retryable.
func (r *SinkRuntime) processBatchWithRetry(ctx context.Context, topic string, recs []*record.SinkRecord) error {
	attemptsFailed := 0
	for {
		err := r.callProcessBatch(ctx, recs)
		if err == nil {
			return nil
		}

		ce := connerr.Classify(err)
		if ce.Kind() != connerr.Retryable {
			return ce
		}

		attemptsFailed++
		if !r.policy.ShouldRetry(attemptsFailed, ce) {
			return ce
		}

		r.metrics.IncRetried(topic, len(recs))
		time.Sleep(r.policy.BackoffFor(attemptsFailed))
	}
}

// callProcessBatch invokes the plugin directly, or through the circuit
// breaker when WithBreaker was configured. A breaker.ErrBreakerOpen trip
// classifies Retryable so it flows through the normal backoff schedule
// instead of being mistaken for a plugin-reported error kind.
func (r *SinkRuntime) callProcessBatch(ctx context.Context, recs []*record.SinkRecord) error {
	if r.breaker == nil {
		return r.plugin.ProcessBatch(ctx, recs)
	}
	err := r.breaker.Run(func() error { return r.plugin.ProcessBatch(ctx, recs) })
	if err == breaker.ErrBreakerOpen {
		return connerr.Retryablef(err, "circuit breaker open")
	}
	return err
}

// drain flushes every topic's buffer exactly once, logging (but not
// halting on) individual flush failures, per spec §4.3's shutdown sequence.
func (r *SinkRuntime) drain(ctx context.Context) {
	for topic := range r.buffers {
		if err := r.flush(ctx, topic); err != nil {
			r.logger.Error("drain flush failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	for _, consumer := range r.consumers {
		_ = consumer.Close()
	}
	r.wg.Wait()
}

var _ fmt.Stringer = State(0)
