package runtime

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/danube-messaging/danube-connect/internal/broker"
	"github.com/danube-messaging/danube-connect/record"
)

// bufferedRecord pairs a decoded SinkRecord with the broker message it was
// built from, so a single FIFO queue can carry both through to flush/ack.
type bufferedRecord struct {
	rec *record.SinkRecord
	msg *broker.Message
}

// topicBuffer is the ordered, per-topic buffer the Sink Runtime appends
// received records into and flushes from. The runtime exclusively owns it;
// the size-triggered and time-triggered flush paths both hold its flushMu
// for the whole detach/process/ack sequence, so they can never overlap for
// the same topic (spec §5), while mu guards only the queue itself. It is
// backed by github.com/eapache/queue, the same ring-buffer-backed FIFO
// signalfx-sarama's retryHandler uses to hold messages awaiting redelivery
// — here it holds records awaiting a batch flush instead. detach implements
// the "atomic swap of the buffer" idiom spec §9 recommends, grounded on
// signalfx-sarama's aggregator.reset(): buffer out, fresh empty buffer in,
// all under one lock acquisition.
type topicBuffer struct {
	mu            sync.Mutex
	q             *queue.Queue
	oldestArrival time.Time

	// flushMu serializes SinkRuntime.flush calls for this topic.
	flushMu sync.Mutex
}

func newTopicBuffer() *topicBuffer {
	return &topicBuffer{q: queue.New()}
}

// append adds rec/msg to the buffer and returns the buffer's length after
// the append, so the caller can compare against effective_batch_size(T)
// without a second lock acquisition.
func (b *topicBuffer) append(rec *record.SinkRecord, msg *broker.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.q.Length() == 0 {
		b.oldestArrival = time.Now()
	}
	b.q.Add(bufferedRecord{rec: rec, msg: msg})
	return b.q.Length()
}

// detach atomically replaces the buffer with an empty one and returns what
// was detached, in FIFO (receive) order. Returns nil, nil if the buffer was
// already empty.
func (b *topicBuffer) detach() ([]*record.SinkRecord, []*broker.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.q.Length()
	if n == 0 {
		return nil, nil
	}
	recs := make([]*record.SinkRecord, n)
	msgs := make([]*broker.Message, n)
	for i := 0; i < n; i++ {
		br := b.q.Remove().(bufferedRecord)
		recs[i] = br.rec
		msgs[i] = br.msg
	}
	return recs, msgs
}

// age returns how long the oldest buffered record has been waiting, or 0 if
// the buffer is empty.
func (b *topicBuffer) age() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.q.Length() == 0 {
		return 0
	}
	return time.Since(b.oldestArrival)
}

// len returns the current buffer length under lock.
func (b *topicBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Length()
}
