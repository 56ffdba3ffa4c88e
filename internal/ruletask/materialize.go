// materialize.go — converts one TimedBatch's columnar rows into []expr.Row
// events the CEP state machine can advance on, field-mapping each row
// per the window schema. Extends batch.RecordBatch.EventTimeRange's arrow
// type-switch to per-row
// event-time extraction and to the string/boolean columns events (not just
// time fields) actually carry.
package ruletask

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/expr"
	"github.com/warpfusion/warpfusion/internal/wfvalue"
)

// materializeRows projects every row of b into an expr.Row keyed by column
// name, alongside that row's event-time in nanoseconds. A batch with no
// time field, or whose time column is absent or null for a given row,
// falls back to batch.Now() for that row — the same fallback
// Window.Append and Window.AppendWithWatermark use when EventTimeRange
// reports ok=false.
func materializeRows(b batch.RecordBatch, timeField string) ([]expr.Row, []int64) {
	rec := b.Underlying()
	if rec == nil {
		return nil, nil
	}
	n := int(rec.NumRows())
	if n == 0 {
		return nil, nil
	}

	schema := rec.Schema()
	cols := make([]arrowColumn, len(schema.Fields()))
	var timeCol int = -1
	for i, f := range schema.Fields() {
		cols[i] = arrowColumn{name: f.Name, arr: rec.Column(i)}
		if f.Name == timeField {
			timeCol = i
		}
	}

	rows := make([]expr.Row, n)
	times := make([]int64, n)
	now := batch.Now()
	for i := 0; i < n; i++ {
		row := make(expr.Row, len(cols))
		for _, c := range cols {
			row[c.name] = valueAt(c.arr, i)
		}
		rows[i] = row

		ns, ok := int64At(cols, timeCol, i)
		if !ok {
			ns = now
		}
		times[i] = ns
	}
	return rows, times
}

type arrowColumn struct {
	name string
	arr  arrow.Array
}

// valueAt extracts one cell as a wfvalue.Value, falling back to Null for
// null cells and for arrow types this subsystem doesn't carry as event
// fields.
func valueAt(col arrow.Array, i int) wfvalue.Value {
	if col.IsNull(i) {
		return wfvalue.Null
	}
	switch arr := col.(type) {
	case *array.Int64:
		return wfvalue.Number(float64(arr.Value(i)))
	case *array.Float64:
		return wfvalue.Number(arr.Value(i))
	case *array.Timestamp:
		return wfvalue.Number(float64(arr.Value(i)))
	case *array.String:
		return wfvalue.String(arr.Value(i))
	case *array.Boolean:
		return wfvalue.Bool(arr.Value(i))
	default:
		return wfvalue.Null
	}
}

// int64At extracts row i of the time column as nanoseconds, reporting
// ok=false when there is no time column, the column type isn't one of the
// recognized numeric/timestamp kinds, or the cell is null.
func int64At(cols []arrowColumn, timeCol, i int) (int64, bool) {
	if timeCol < 0 {
		return 0, false
	}
	col := cols[timeCol].arr
	if col.IsNull(i) {
		return 0, false
	}
	switch arr := col.(type) {
	case *array.Int64:
		return arr.Value(i), true
	case *array.Timestamp:
		return int64(arr.Value(i)), true
	case *array.Float64:
		return int64(arr.Value(i)), true
	default:
		return 0, false
	}
}
