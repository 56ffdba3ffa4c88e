// types.go — Window configuration and the TimedBatch envelope that wraps
// every appended RecordBatch with the bookkeeping the buffer needs
// (event-time range, sequence number, byte size).
package window

import (
	"time"

	"github.com/warpfusion/warpfusion/internal/batch"
)

// LatePolicy controls what happens to a batch whose min event-time falls
// behind watermark-allowedLateness.
type LatePolicy uint8

const (
	LateDrop LatePolicy = iota
	LateRevise
	LateSideOutput
)

func (p LatePolicy) String() string {
	switch p {
	case LateDrop:
		return "drop"
	case LateRevise:
		return "revise"
	case LateSideOutput:
		return "side_output"
	default:
		return "unknown"
	}
}

// DistMode is reserved distribution scoping for a window subscription;
// only Local is wired to the Router.
type DistMode uint8

const (
	DistLocal DistMode = iota
	DistPartitioned
	DistReplicated
)

// Def is the logical+runtime definition a Window is built from.
type Def struct {
	Name string

	// Logical definition.
	Streams   []string
	TimeField string // empty => every batch is stamped with its append time
	Over      time.Duration

	// Field schema is owned by the external compiler/IPC layer; the core
	// only needs field names for scope-key / expression resolution, which
	// is carried on events themselves, not here.

	// Runtime configuration.
	MaxWindowBytes  int64
	OverCap         time.Duration
	WatermarkDelay  time.Duration
	AllowedLateness time.Duration
	LatePolicy      LatePolicy
	DistMode        DistMode
}

// IsStatic reports a window with over=0: no time-based expiry.
func (d Def) IsStatic() bool { return d.Over == 0 }

// IsYieldOnly reports a window with no subscribed streams: an output-only
// window that the Router never appends to.
func (d Def) IsYieldOnly() bool { return len(d.Streams) == 0 }

// AppendOutcome is the result of appendWithWatermark.
type AppendOutcome uint8

const (
	Appended AppendOutcome = iota
	DroppedLate
)

// TimedBatch is one entry in a Window's batch deque.
type TimedBatch struct {
	Batch      batch.RecordBatch
	MinEventNS int64
	MaxEventNS int64
	RowCount   int64
	ByteSize   int64
	Seq        uint64
}
