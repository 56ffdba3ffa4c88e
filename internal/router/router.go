// router.go — Router: the single entry point by which ingested batches
// reach subscribed windows. The writer-then-notify ordering below is
// grounded on the teacher's StreamState.EmitAlert
// (internal/streaming/stream.go), which explicitly unlocks before emitting
// its MCP notification rather than holding the lock across the notify
// call — release the writer before notifying, so woken tasks can
// immediately acquire the reader.
package router

import (
	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/window"
)

// RouteReport tallies the outcome of routing one batch to every window
// subscribed to its stream.
type RouteReport struct {
	Delivered       int
	DroppedLate     int
	SkippedNonLocal int
}

// Router fans ingested batches out to subscribed windows.
type Router struct {
	reg *registry.Registry
}

// New constructs a Router over an already-built Registry.
func New(reg *registry.Registry) *Router {
	return &Router{reg: reg}
}

// Route appends b to every window subscribed to stream, notifying each
// window's waiting rule task after the append completes. A stream with no
// subscribers is a silent drop (RouteReport{}).
func (rt *Router) Route(stream string, b batch.RecordBatch) RouteReport {
	var report RouteReport

	subs := rt.reg.SubscribersOf(stream)
	if len(subs) == 0 {
		return report
	}

	for _, sub := range subs {
		if sub.DistMode != window.DistLocal {
			report.SkippedNonLocal++
			continue
		}

		w, ok := rt.reg.GetWindow(sub.WindowName)
		if !ok {
			continue
		}

		outcome := w.AppendWithWatermark(b.Clone())

		if n, ok := rt.reg.GetNotifier(sub.WindowName); ok {
			n.NotifyWaiters()
		}

		switch outcome {
		case window.Appended:
			report.Delivered++
		case window.DroppedLate:
			report.DroppedLate++
		}
	}

	return report
}
