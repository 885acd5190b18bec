// Package record defines the immutable record model the runtimes pass
// between the broker and plugin code: SinkRecord (broker -> plugin) and
// SourceRecord (plugin -> broker), plus the Offset the source runtime hands
// back after publication.
package record

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"unicode/utf8"

	"github.com/danube-messaging/danube-connect/connerr"
)

// Metadata carries broker-side provenance for a SinkRecord, used for
// observability and acknowledgement correlation (spec §3).
type Metadata struct {
	Topic         string
	Offset        uint64
	PublishTimeUs uint64
	MessageID     string
	ProducerName  string
}

// SinkRecord is the immutable view of a broker message handed to a
// SinkPlugin. Construct with NewSinkRecord; all fields are read through
// accessors and SinkRecord has no setters. Payload and Attributes return the
// record's own backing slice and map, not copies.
type SinkRecord struct {
	payload    []byte
	attributes map[string]string
	metadata   Metadata
	partition  *string
}

// NewSinkRecord builds a SinkRecord from broker-delivered fields. attributes
// may be nil; it is treated as empty.
func NewSinkRecord(payload []byte, attributes map[string]string, metadata Metadata, partition *string) *SinkRecord {
	if attributes == nil {
		attributes = map[string]string{}
	}
	return &SinkRecord{payload: payload, attributes: attributes, metadata: metadata, partition: partition}
}

// Payload returns the raw record bytes.
func (r *SinkRecord) Payload() []byte { return r.payload }

// PayloadSize returns len(Payload()).
func (r *SinkRecord) PayloadSize() int { return len(r.payload) }

// Attributes returns the producer-set user properties.
func (r *SinkRecord) Attributes() map[string]string { return r.attributes }

// Attribute returns a single attribute value and whether it was present.
func (r *SinkRecord) Attribute(key string) (string, bool) {
	v, ok := r.attributes[key]
	return v, ok
}

// Metadata returns the broker-side provenance for this record.
func (r *SinkRecord) Metadata() Metadata { return r.metadata }

// Partition returns the optional partition identifier.
func (r *SinkRecord) Partition() *string { return r.partition }

// Topic is shorthand for Metadata().Topic.
func (r *SinkRecord) Topic() string { return r.metadata.Topic }

// Offset is shorthand for Metadata().Offset.
func (r *SinkRecord) Offset() uint64 { return r.metadata.Offset }

// PayloadString interprets the payload as UTF-8 text, failing with
// InvalidData if it is not valid UTF-8.
func (r *SinkRecord) PayloadString() (string, error) {
	if !utf8.Valid(r.payload) {
		return "", connerr.InvalidDataf(nil, "payload is not valid UTF-8")
	}
	return string(r.payload), nil
}

// PayloadJSON decodes the payload as JSON into v, failing with InvalidData
// on malformed JSON.
func (r *SinkRecord) PayloadJSON(v any) error {
	if err := json.Unmarshal(r.payload, v); err != nil {
		return connerr.InvalidDataf(err, "failed to decode JSON payload")
	}
	return nil
}

// PayloadInt64 interprets the payload as an 8-byte big-endian signed
// integer, failing with InvalidData if the payload is not exactly 8 bytes.
func (r *SinkRecord) PayloadInt64() (int64, error) {
	if len(r.payload) != 8 {
		return 0, connerr.InvalidDataf(nil, "payload is %d bytes, want 8 for int64 schema", len(r.payload))
	}
	return int64(binary.BigEndian.Uint64(r.payload)), nil
}

// PayloadBytesBase64 returns the payload wrapped as a base64 string, the
// Bytes schema accessor (spec §3).
func (r *SinkRecord) PayloadBytesBase64() string {
	return base64.StdEncoding.EncodeToString(r.payload)
}

// Int64Payload encodes x as an 8-byte big-endian payload, the inverse of
// PayloadInt64, used by SourceRecord construction and round-trip tests.
func Int64Payload(x int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(x))
	return buf
}

// ProducerConfig overrides the default producer settings for a topic a
// SourceRecord targets (spec §3); mirrors the runtime-level ProducerConfig
// a SourcePlugin declares up front, but scoped to a single record.
type ProducerConfig struct {
	Partitions       int
	ReliableDispatch bool
}

// SourceRecord is built by a SourcePlugin and handed to the Source Runtime
// for publication.
type SourceRecord struct {
	Topic          string
	Payload        []byte
	Attributes     map[string]string
	Key            *string
	ProducerConfig *ProducerConfig
}

// NewSourceRecord builds a minimal SourceRecord with empty attributes.
func NewSourceRecord(topic string, payload []byte) *SourceRecord {
	return &SourceRecord{Topic: topic, Payload: payload, Attributes: map[string]string{}}
}

// NewSourceRecordFromString builds a SourceRecord from a string payload.
func NewSourceRecordFromString(topic, payload string) *SourceRecord {
	return NewSourceRecord(topic, []byte(payload))
}

// NewSourceRecordFromJSON builds a SourceRecord by JSON-marshaling v.
func NewSourceRecordFromJSON(topic string, v any) (*SourceRecord, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, connerr.Fatalf(err, "failed to marshal JSON source payload")
	}
	return NewSourceRecord(topic, payload), nil
}

// WithAttribute sets a single attribute and returns the record for chaining.
func (r *SourceRecord) WithAttribute(key, value string) *SourceRecord {
	if r.Attributes == nil {
		r.Attributes = map[string]string{}
	}
	r.Attributes[key] = value
	return r
}

// WithKey sets the routing-hint key and returns the record for chaining.
func (r *SourceRecord) WithKey(key string) *SourceRecord {
	r.Key = &key
	return r
}

// WithProducerConfig overrides the producer configuration for this record's
// destination topic and returns the record for chaining.
func (r *SourceRecord) WithProducerConfig(cfg ProducerConfig) *SourceRecord {
	r.ProducerConfig = &cfg
	return r
}

// Size returns len(Payload).
func (r *SourceRecord) Size() int { return len(r.Payload) }

// Offset is the opaque cursor the source runtime returns to the plugin after
// a record has been published, so the plugin can advance its external
// cursor (spec §3).
type Offset struct {
	Topic    string
	Position uint64
}
