// Package pdata defines the telemetry payload batch flowing between nodes
package pdata

import "time"

// Signal identifies which telemetry stream a batch belongs to.
type Signal string

const (
	// SignalLogs marks a batch of log records.
	SignalLogs Signal = "logs"
	// SignalMetrics marks a batch of metric points.
	SignalMetrics Signal = "metrics"
	// SignalTraces marks a batch of spans.
	SignalTraces Signal = "traces"
)

// Record is one telemetry item. The engine treats it as opaque cargo; only
// nodes interpret it.
type Record struct {
	TimestampNs uint64                 `json:"timestamp_ns" msgpack:"timestamp_ns"`
	Body        string                 `json:"body" msgpack:"body"`
	Attrs       map[string]interface{} `json:"attrs,omitempty" msgpack:"attrs,omitempty"`
}

// Batch is the unit of payload moved between pipeline nodes.
type Batch struct {
	Signal  Signal   `json:"signal" msgpack:"signal"`
	Records []Record `json:"records" msgpack:"records"`
}

// NewBatch creates a batch for a signal with the given records.
func NewBatch(signal Signal, records ...Record) *Batch {
	return &Batch{Signal: signal, Records: records}
}

// NewRecord creates a record stamped with the current time.
func NewRecord(body string, attrs map[string]interface{}) Record {
	return Record{
		TimestampNs: uint64(time.Now().UnixNano()),
		Body:        body,
		Attrs:       attrs,
	}
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Append adds records to the batch.
func (b *Batch) Append(records ...Record) {
	b.Records = append(b.Records, records...)
}
