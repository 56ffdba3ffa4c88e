// batches.go — shared test fixtures for building arrow-backed RecordBatches
// and events without needing a live ingest/IPC pipeline. Used across
// internal/window, internal/router, and internal/evictor tests.
package wfltest

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/warpfusion/warpfusion/internal/batch"
)

// Row is one event's worth of column values, keyed by field name.
type Row map[string]any

// BuildBatch assembles a RecordBatch from rows. Each column's type is
// inferred from its first non-nil value: float64 -> Float64,
// int64 or int -> Int64 (used for time fields, nanosecond epoch), string ->
// String, bool -> Boolean. A nil value in any row renders as null in that
// column.
func BuildBatch(rows []Row) batch.RecordBatch {
	if len(rows) == 0 {
		return batch.RecordBatch{}
	}

	fields := make([]string, 0)
	seen := map[string]bool{}
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}

	pool := memory.NewGoAllocator()
	arrowFields := make([]arrow.Field, 0, len(fields))
	cols := make([]arrow.Array, 0, len(fields))

	for _, name := range fields {
		var sampleType any
		for _, r := range rows {
			if v, ok := r[name]; ok && v != nil {
				sampleType = v
				break
			}
		}

		switch sampleType.(type) {
		case int64, int:
			b := array.NewInt64Builder(pool)
			for _, r := range rows {
				v, ok := r[name]
				if !ok || v == nil {
					b.AppendNull()
					continue
				}
				switch n := v.(type) {
				case int64:
					b.Append(n)
				case int:
					b.Append(int64(n))
				default:
					b.AppendNull()
				}
			}
			arrowFields = append(arrowFields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int64, Nullable: true})
			cols = append(cols, b.NewArray())
		case float64:
			b := array.NewFloat64Builder(pool)
			for _, r := range rows {
				v, ok := r[name]
				if !ok || v == nil {
					b.AppendNull()
					continue
				}
				b.Append(v.(float64))
			}
			arrowFields = append(arrowFields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
			cols = append(cols, b.NewArray())
		case bool:
			b := array.NewBooleanBuilder(pool)
			for _, r := range rows {
				v, ok := r[name]
				if !ok || v == nil {
					b.AppendNull()
					continue
				}
				b.Append(v.(bool))
			}
			arrowFields = append(arrowFields, arrow.Field{Name: name, Type: arrow.FixedWidthTypes.Boolean, Nullable: true})
			cols = append(cols, b.NewArray())
		default:
			b := array.NewStringBuilder(pool)
			for _, r := range rows {
				v, ok := r[name]
				if !ok || v == nil {
					b.AppendNull()
					continue
				}
				b.Append(v.(string))
			}
			arrowFields = append(arrowFields, arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true})
			cols = append(cols, b.NewArray())
		}
	}

	schema := arrow.NewSchema(arrowFields, nil)
	rec := array.NewRecord(schema, cols, int64(len(rows)))
	for _, c := range cols {
		c.Release()
	}
	return batch.New(rec)
}
