package runtime

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/danube-messaging/danube-connect/config"
	"github.com/danube-messaging/danube-connect/connerr"
	"github.com/danube-messaging/danube-connect/internal/broker"
	"github.com/danube-messaging/danube-connect/metrics"
	"github.com/danube-messaging/danube-connect/plugin"
	"github.com/danube-messaging/danube-connect/record"
	"github.com/danube-messaging/danube-connect/retry"
)

// SourceOption configures a SourceRuntime at construction time.
type SourceOption func(*SourceRuntime)

// WithSourceMetrics overrides the default no-op metrics.Sink.
func WithSourceMetrics(m metrics.Sink) SourceOption {
	return func(r *SourceRuntime) { r.metrics = m }
}

// WithSourceLogger overrides the default no-op zap.Logger.
func WithSourceLogger(l *zap.Logger) SourceOption {
	return func(r *SourceRuntime) { r.logger = l }
}

// SourceRuntime creates N producers upfront, polls the plugin for records,
// routes each to its producer, publishes, and commits offsets (spec §4.4).
type SourceRuntime struct {
	cfg    *config.Config
	client broker.Client
	plugin plugin.SourcePlugin
	policy retry.Policy

	metrics metrics.Sink
	logger  *zap.Logger

	state atomic.Int32

	producers map[string]broker.Producer
}

// NewSourceRuntime builds a SourceRuntime. cfg must already satisfy
// Validate(); NewSourceRuntime re-validates and returns a Config error
// otherwise.
func NewSourceRuntime(cfg *config.Config, client broker.Client, sourcePlugin plugin.SourcePlugin, opts ...SourceOption) (*SourceRuntime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &SourceRuntime{
		cfg:    cfg,
		client: client,
		plugin: sourcePlugin,
		policy: retry.Policy{
			MaxRetries:  cfg.Retry.MaxRetries,
			BaseBackoff: cfg.Retry.BaseBackoff(),
			MaxBackoff:  cfg.Retry.MaxBackoff(),
		},
		metrics:   metrics.Noop{},
		logger:    zap.NewNop(),
		producers: make(map[string]broker.Producer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// State reports the runtime's current lifecycle stage.
func (r *SourceRuntime) State() State { return State(r.state.Load()) }

func (r *SourceRuntime) setState(s State) { r.state.Store(int32(s)) }

// producerName mirrors danube-connect-core's source_runtime.rs:
// {connector_name}-{topic-with-slashes-replaced}.
func producerName(connectorName, topic string) string {
	return connectorName + "-" + strings.ReplaceAll(topic, "/", "-")
}

// Run executes the full lifecycle: startup (producer creation), poll loop
// until ctx is canceled, and plugin shutdown.
func (r *SourceRuntime) Run(ctx context.Context) error {
	if err := r.startup(ctx); err != nil {
		return err
	}
	r.setState(StateRunning)
	r.metrics.SetHealthy(true)

	runErr := r.pollLoop(ctx)

	r.setState(StateDraining)
	drainCtx := context.WithoutCancel(ctx)
	if shutdownErr := r.plugin.Shutdown(drainCtx); shutdownErr != nil {
		r.logger.Error("plugin shutdown failed", zap.Error(shutdownErr))
		if runErr == nil {
			runErr = shutdownErr
		}
	}
	for _, p := range r.producers {
		_ = p.Close()
	}

	r.metrics.SetHealthy(false)
	r.setState(StateStopped)
	return runErr
}

func (r *SourceRuntime) startup(ctx context.Context) error {
	if err := r.plugin.Initialize(ctx, r.cfg); err != nil {
		return connerr.Classify(err)
	}

	producerConfigs, err := r.plugin.ProducerConfigs(ctx)
	if err != nil {
		return connerr.Classify(err)
	}
	if len(producerConfigs) == 0 {
		return connerr.Configf(nil, "no producer configurations provided by plugin")
	}

	for _, pc := range producerConfigs {
		producer, err := r.client.NewProducer(ctx, broker.ProducerConfig{
			Topic:            pc.Topic,
			Name:             producerName(r.cfg.ConnectorName, pc.Topic),
			Partitions:       pc.Partitions,
			ReliableDispatch: pc.ReliableDispatch,
		})
		if err != nil {
			return connerr.Fatalf(err, "failed to create producer for topic %s", pc.Topic)
		}
		r.producers[pc.Topic] = producer
	}

	r.setState(StateInitialized)
	return nil
}

// pollLoop calls plugin.Poll, publishes whatever it returns, and commits
// offsets, sleeping poll_interval_ms on an empty result (spec §4.4).
func (r *SourceRuntime) pollLoop(ctx context.Context) error {
	pollInterval := r.cfg.Processing.PollInterval()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		records, err := r.plugin.Poll(ctx)
		if err != nil {
			ce := connerr.Classify(err)
			if ce.Kind() == connerr.Fatal {
				return ce
			}
			r.logger.Error("poll error", zap.Error(ce))
			if !sleepOrDone(ctx, pollInterval) {
				return nil
			}
			continue
		}

		if len(records) == 0 {
			if !sleepOrDone(ctx, pollInterval) {
				return nil
			}
			continue
		}

		r.metrics.ObserveBatchSize("multi-topic", len(records))

		offsets, publishErr := r.publishBatch(ctx, records)
		if publishErr != nil {
			r.logger.Error("failed to publish batch", zap.Error(publishErr))
			if connerr.Is(publishErr, connerr.Fatal) {
				return publishErr
			}
			// Terminal (retry-exhausted) publish failure: per spec §4.4 and
			// §9's recorded Open Question decision, commit() is skipped for
			// the whole poll batch and the runtime continues polling.
			continue
		}

		if err := r.plugin.Commit(ctx, offsets); err != nil {
			r.logger.Error("failed to commit offsets", zap.Error(connerr.Classify(err)))
		}
	}
}

// publishBatch sends each record to its destination topic's pre-created
// producer in returned order, retrying each record individually under the
// backoff policy on a Retryable publish error. It stops at the first record
// that fails terminally (or whose topic has no producer, a Fatal error) and
// returns nil offsets with the error, so no offsets are reported for that
// poll batch — per the preserved Open Question decision, a terminal failure
// anywhere in the batch drops the whole batch's commit.
func (r *SourceRuntime) publishBatch(ctx context.Context, records []*record.SourceRecord) ([]record.Offset, error) {
	offsets := make([]record.Offset, 0, len(records))

	for idx, rec := range records {
		producer, ok := r.producers[rec.Topic]
		if !ok {
			return nil, connerr.Fatalf(nil, "no producer found for topic %s; ensure producer_configs includes it", rec.Topic)
		}

		start := time.Now()
		messageID, err := r.publishWithRetry(ctx, producer, rec, idx)
		r.metrics.ObserveProcessingDuration(rec.Topic, time.Since(start))

		if err != nil {
			return nil, err
		}

		r.metrics.IncSucceeded(rec.Topic, 1)
		_ = messageID
		offsets = append(offsets, record.Offset{Topic: rec.Topic, Position: uint64(idx)})
	}

	return offsets, nil
}

// publishWithRetry sends one record under the retry policy, the per-record
// analogue of the Sink Runtime's processBatchWithRetry.
func (r *SourceRuntime) publishWithRetry(ctx context.Context, producer broker.Producer, rec *record.SourceRecord, idx int) (string, error) {
	attrs := rec.Attributes
	key := rec.Key
	if key != nil {
		if rp, ok := producer.(interface{ SupportsRoutingKey() bool }); !ok || !rp.SupportsRoutingKey() {
			// Broker does not support key-based routing natively: preserve
			// the field as an attribute instead (spec §4.4).
			if attrs == nil {
				attrs = map[string]string{}
			} else {
				copied := make(map[string]string, len(attrs)+1)
				for k, v := range attrs {
					copied[k] = v
				}
				attrs = copied
			}
			attrs["__routing_key"] = *key
		}
	}

	attemptsFailed := 0
	for {
		messageID, err := producer.Send(ctx, rec.Payload, attrs, key)
		if err == nil {
			return messageID, nil
		}

		// Classify before deciding to retry, the same way
		// processBatchWithRetry does for the Sink Runtime: a broker client
		// that already reports Fatal/Config/InvalidData must propagate as
		// such rather than being forced Retryable, which would let a
		// genuinely fatal broker failure retry forever instead of
		// terminating the runtime (spec §4.2). Only a truly unclassified
		// error falls back to connerr.Classify's Retryable default.
		ce := connerr.Classify(err)
		if ce.Kind() != connerr.Retryable {
			r.metrics.IncErrored(rec.Topic, 1)
			r.logger.Error("publish failed", zap.String("topic", rec.Topic), zap.Int("input_index", idx), zap.Error(ce))
			return "", ce
		}

		attemptsFailed++
		if !r.policy.ShouldRetry(attemptsFailed, ce) {
			r.metrics.IncErrored(rec.Topic, 1)
			r.logger.Error("publish retries exhausted", zap.String("topic", rec.Topic), zap.Int("input_index", idx), zap.Error(ce))
			return "", ce
		}
		r.metrics.IncRetried(rec.Topic, 1)
		time.Sleep(r.policy.BackoffFor(attemptsFailed))
	}
}

// sleepOrDone sleeps for d, returning false early (without sleeping the
// full duration) if ctx is canceled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
