// window.go — Window: a time-ordered columnar batch deque with
// watermark-aware append, cursor-based reads, and two-phase eviction.
// Thread-safe: all mutation and reads are guarded by a single RWMutex,
// the same discipline the teacher's ring buffer uses
// (internal/buffers/ring_buffer.go) — writers (Router, Evictor) take the
// write lock briefly per batch; readers (rule tasks) take the read lock for
// ReadSince/Snapshot and may run concurrently with each other.
package window

import (
	"sync"

	"github.com/warpfusion/warpfusion/internal/batch"
)

// Window is identified by a globally unique name (carried by the
// registry, not stored here).
type Window struct {
	def Def

	mu sync.RWMutex

	batches []TimedBatch // insertion order; Seq strictly increasing

	watermarkNS   int64
	nextSeq       uint64
	currentBytes  int64
	totalRows     int64

	// sideOutput receives batches dropped under LateSideOutput. Buffered;
	// a full channel drops the oldest pending side-output batch rather
	// than blocking the writer (memory pressure must never block appends).
	sideOutput chan TimedBatch
}

const sideOutputBuffer = 16

// New constructs a Window from its definition. Runtime state starts empty;
// watermarkNS starts at the minimum possible value so the first append
// always advances it.
func New(def Def) *Window {
	return &Window{
		def:        def,
		watermarkNS: minInt64,
		sideOutput: make(chan TimedBatch, sideOutputBuffer),
	}
}

const minInt64 = -1 << 63

// Def returns the window's (immutable) definition.
func (w *Window) Def() Def { return w.def }

// NextSeq returns the sequence number the next appended batch will receive.
// Rule tasks call this at startup to initialize their cursor without
// replaying history.
func (w *Window) NextSeq() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.nextSeq
}

// Append unconditionally appends a batch, bypassing watermark/lateness
// logic. Only tests call it; the Router writes through
// AppendWithWatermark.
func (w *Window) Append(b batch.RecordBatch) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	min, max, ok := b.EventTimeRange(w.def.TimeField)
	if !ok {
		now := batch.Now()
		min, max = now, now
	}
	return w.appendLocked(b, min, max)
}

func (w *Window) appendLocked(b batch.RecordBatch, minNS, maxNS int64) uint64 {
	seq := w.nextSeq
	w.nextSeq++

	tb := TimedBatch{
		Batch:      b,
		MinEventNS: minNS,
		MaxEventNS: maxNS,
		RowCount:   b.Rows(),
		ByteSize:   b.ByteSize(),
		Seq:        seq,
	}
	w.batches = append(w.batches, tb)
	w.currentBytes += tb.ByteSize
	w.totalRows += tb.RowCount
	return seq
}

// AppendWithWatermark is the canonical write path. Lateness is checked
// against the watermark BEFORE the watermark is advanced: doing it the
// other way would let a batch's own early events cause it to self-declare
// as late.
func (w *Window) AppendWithWatermark(b batch.RecordBatch) AppendOutcome {
	w.mu.Lock()
	defer w.mu.Unlock()

	minNS, maxNS, ok := b.EventTimeRange(w.def.TimeField)
	if !ok {
		now := batch.Now()
		minNS, maxNS = now, now
	}

	cutoff := w.watermarkNS - int64(w.def.AllowedLateness)
	if minNS < cutoff {
		switch w.def.LatePolicy {
		case LateDrop:
			return DroppedLate
		case LateSideOutput:
			w.offerSideOutput(TimedBatch{
				Batch:      b,
				MinEventNS: minNS,
				MaxEventNS: maxNS,
				RowCount:   b.Rows(),
				ByteSize:   b.ByteSize(),
			})
			return DroppedLate
		case LateRevise:
			// fall through to append; no recomputation of already-emitted
			// alerts is performed.
		}
	}

	newWatermark := maxNS - int64(w.def.WatermarkDelay)
	if newWatermark > w.watermarkNS {
		w.watermarkNS = newWatermark
	}

	// An empty batch only moves the watermark; nothing is buffered.
	if b.Rows() == 0 {
		b.Release()
		return Appended
	}

	w.appendLocked(b, minNS, maxNS)
	return Appended
}

// offerSideOutput pushes to the side-output channel without blocking,
// dropping the oldest pending entry on overflow. Caller must hold w.mu.
func (w *Window) offerSideOutput(tb TimedBatch) {
	select {
	case w.sideOutput <- tb:
	default:
		select {
		case <-w.sideOutput:
		default:
		}
		select {
		case w.sideOutput <- tb:
		default:
		}
	}
}

// SideOutput exposes the side-output channel for LateSideOutput windows.
func (w *Window) SideOutput() <-chan TimedBatch { return w.sideOutput }

// Watermark returns the current watermark.
func (w *Window) Watermark() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watermarkNS
}

// MemoryUsage returns current_bytes.
func (w *Window) MemoryUsage() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentBytes
}

// Snapshot returns a cheap clone of every current batch, for read-only
// join snapshots. Each returned RecordBatch is Retain'd; callers must
// Release when done.
func (w *Window) Snapshot() []batch.RecordBatch {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]batch.RecordBatch, len(w.batches))
	for i, tb := range w.batches {
		out[i] = tb.Batch.Clone()
	}
	return out
}

// ReadSince implements the cursor-read contract: if cursor precedes the
// oldest retained batch, eviction has overtaken the reader and
// gapDetected is reported (all current batches are returned and the cursor
// jumps past them); if cursor is beyond the newest batch, nothing has
// arrived yet. Returned batches are cloned (cheap, shared buffers).
func (w *Window) ReadSince(cursor uint64) (batches []TimedBatch, newCursor uint64, gapDetected bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.batches) == 0 {
		return nil, cursor, false
	}

	oldest := w.batches[0].Seq
	newest := w.batches[len(w.batches)-1].Seq

	if cursor < oldest {
		out := make([]TimedBatch, len(w.batches))
		for i, tb := range w.batches {
			tb.Batch = tb.Batch.Clone()
			out[i] = tb
		}
		return out, newest + 1, true
	}
	if cursor > newest {
		return nil, cursor, false
	}

	// binary-search would be appropriate at scale; batches per window is
	// small enough in practice that a linear scan keeps this readable.
	start := 0
	for start < len(w.batches) && w.batches[start].Seq < cursor {
		start++
	}
	out := make([]TimedBatch, 0, len(w.batches)-start)
	for _, tb := range w.batches[start:] {
		tb.Batch = tb.Batch.Clone()
		out = append(out, tb)
	}
	return out, newest + 1, false
}

// EvictExpired drops batches whose MaxEventNS < now-over, scanning from the
// oldest batch and stopping at the first one that has not expired: an
// expired batch that sits behind a newer, unexpired one (possible when
// batches arrive out of event-time order) stays until the batches ahead of
// it are gone. A no-op for static (over=0) windows.
func (w *Window) EvictExpired(nowNS int64) (freedBytes int64, freedCount int) {
	if w.def.IsStatic() {
		return 0, 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := nowNS - int64(w.def.Over)
	i := 0
	for i < len(w.batches) && w.batches[i].MaxEventNS < cutoff {
		tb := w.batches[i]
		freedBytes += tb.ByteSize
		freedCount++
		tb.Batch.Release()
		i++
	}
	if i > 0 {
		w.currentBytes -= freedBytes
		w.totalRows -= sumRows(w.batches[:i])
		w.batches = w.batches[i:]
	}
	return freedBytes, freedCount
}

func sumRows(tbs []TimedBatch) int64 {
	var total int64
	for _, tb := range tbs {
		total += tb.RowCount
	}
	return total
}

// EvictOldest pops exactly one oldest batch, used by the global memory
// sweeper. Reports freed byte count and whether a batch was actually
// present.
func (w *Window) EvictOldest() (freedBytes int64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.batches) == 0 {
		return 0, false
	}
	tb := w.batches[0]
	w.batches = w.batches[1:]
	w.currentBytes -= tb.ByteSize
	w.totalRows -= tb.RowCount
	tb.Batch.Release()
	return tb.ByteSize, true
}

// OldestEventNS returns the event-time max of the oldest retained batch, for
// the evictor's time_first selection policy. ok is false when the window
// has no batches.
func (w *Window) OldestEventNS() (ns int64, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.batches) == 0 {
		return 0, false
	}
	return w.batches[0].MaxEventNS, true
}

// BatchCount reports how many batches the window currently retains, mostly
// for tests and diagnostics.
func (w *Window) BatchCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.batches)
}
