// record.go — RecordBatch: a cheap, reference-counted handle over a
// columnar block that is never deep-copied on clone. Backed by
// apache/arrow-go's arrow.Record, whose Retain/Release already implement
// exactly that discipline.
package batch

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// RecordBatch is an opaque columnar block with a known schema, a row count,
// and a byte-size estimate. Cloning retains the underlying arrow.Record
// instead of copying it.
type RecordBatch struct {
	rec arrow.Record
}

// New wraps an arrow.Record. Ownership of rec transfers to the returned
// RecordBatch: the caller must not call rec.Release() itself.
func New(rec arrow.Record) RecordBatch {
	return RecordBatch{rec: rec}
}

// Valid reports whether the batch wraps a live record (the zero RecordBatch
// is invalid).
func (b RecordBatch) Valid() bool { return b.rec != nil }

// Rows returns the row count of the batch.
func (b RecordBatch) Rows() int64 {
	if b.rec == nil {
		return 0
	}
	return b.rec.NumRows()
}

// ByteSize estimates retained memory by summing the byte length of every
// buffer backing every column, for current_bytes accounting. It is an
// approximation (shared dictionary buffers count once per column), which is
// acceptable since the only invariant it must satisfy is internal
// consistency between append and evict accounting, not true RSS
// measurement.
func (b RecordBatch) ByteSize() int64 {
	if b.rec == nil {
		return 0
	}
	var total int64
	for _, col := range b.rec.Columns() {
		data := col.Data()
		for _, buf := range data.Buffers() {
			if buf != nil {
				total += int64(buf.Len())
			}
		}
	}
	return total
}

// Column returns the named column array, if present.
func (b RecordBatch) Column(name string) (arrow.Array, bool) {
	if b.rec == nil {
		return nil, false
	}
	idx := b.rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, false
	}
	return b.rec.Column(idx[0]), true
}

// Clone returns a new handle sharing the same underlying buffers — a cheap,
// zero-copy operation (arrow.Record.Retain increments a refcount).
func (b RecordBatch) Clone() RecordBatch {
	if b.rec == nil {
		return RecordBatch{}
	}
	b.rec.Retain()
	return RecordBatch{rec: b.rec}
}

// Release drops this handle's reference. The underlying buffers are freed
// once every clone has been released.
func (b RecordBatch) Release() {
	if b.rec != nil {
		b.rec.Release()
	}
}

// Underlying exposes the wrapped arrow.Record for code (ingest decode,
// tests) that needs direct column access beyond Column/ByteSize/Rows.
func (b RecordBatch) Underlying() arrow.Record { return b.rec }

// EventTimeRange extracts (min, max) event-time nanoseconds from the named
// time-field column. A batch with no time field, or whose column is absent,
// reports ok=false; the caller (Window.appendWithWatermark) treats that as
// min=max=now().
func (b RecordBatch) EventTimeRange(timeField string) (min, max int64, ok bool) {
	if timeField == "" {
		return 0, 0, false
	}
	col, present := b.Column(timeField)
	if !present || col.Len() == 0 {
		return 0, 0, false
	}

	var values []int64
	switch arr := col.(type) {
	case *array.Int64:
		values = arr.Int64Values()
	case *array.Timestamp:
		ts := arr.TimestampValues()
		values = make([]int64, len(ts))
		for i, t := range ts {
			values[i] = int64(t)
		}
	case *array.Float64:
		fvals := arr.Float64Values()
		values = make([]int64, len(fvals))
		for i, f := range fvals {
			values[i] = int64(f)
		}
	default:
		return 0, 0, false
	}

	first := true
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			continue
		}
		v := values[i]
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if first {
		// every row null
		return 0, 0, false
	}
	return min, max, true
}

// Now returns the current time in the event-time unit (nanoseconds since
// epoch) used throughout the window subsystem. Exists so tests can be
// written against a fixed clock without touching this package's exported
// surface.
func Now() int64 { return time.Now().UnixNano() }
