// Package retry implements the connector framework's exponential backoff
// retry strategy (spec §4.2) and an optional circuit-breaker wrapper modeled
// on the per-partition breaker signalfx-sarama's async producer keeps around
// each broker connection.
package retry

import (
	"time"

	"github.com/eapache/go-resiliency/breaker"

	"github.com/danube-messaging/danube-connect/connerr"
)

// Policy is the exponential-backoff retry strategy. Attempts are 1-indexed:
// BackoffFor(1) is the delay before the second attempt.
type Policy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// BackoffFor returns min(BaseBackoff * 2^(attempt-1), MaxBackoff) for
// attempt >= 1. Callers pass the attempt number that just failed.
func (p Policy) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if p.MaxBackoff > 0 && backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

// ShouldRetry reports whether attempt N (the attempt that just failed) may
// be retried: the error must classify as Retryable and N must not exceed
// MaxRetries.
func (p Policy) ShouldRetry(attempt int, err error) bool {
	if attempt > p.MaxRetries {
		return false
	}
	return connerr.Is(err, connerr.Retryable)
}

// BreakerPolicy wraps a Policy with a circuit breaker so that a destination
// (topic, producer, partition...) which has failed repeatedly trips open and
// fails fast instead of retrying into a broker that is clearly down. Grounded
// on signalfx-sarama/async_producer.go's per-partition
// breaker.New(3, 1, 10*time.Second) usage — the same error-count/success-count
// /timeout shape.
type BreakerPolicy struct {
	Policy
	br *breaker.Breaker
}

// NewBreakerPolicy builds a BreakerPolicy. errorThreshold consecutive
// failures trip the breaker open for timeout; successThreshold consecutive
// successes in the half-open state close it again.
func NewBreakerPolicy(p Policy, errorThreshold, successThreshold int, timeout time.Duration) *BreakerPolicy {
	return &BreakerPolicy{
		Policy: p,
		br:     breaker.New(errorThreshold, successThreshold, timeout),
	}
}

// Run executes fn through the circuit breaker, returning breaker.ErrBreakerOpen
// (classified Retryable by the caller) when the breaker is open.
func (bp *BreakerPolicy) Run(fn func() error) error {
	return bp.br.Run(fn)
}
