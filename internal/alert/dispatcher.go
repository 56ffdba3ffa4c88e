// dispatcher.go — Dispatcher: the single alert-consuming task. Deliberately
// does NOT observe any cancellation token: a context that stops delivery
// mid-stream is liable to drop trailing alerts. Shutdown is signaled
// exclusively by the producer closing the channel once every rule task has
// drained (internal/supervisor), the same channel-close-as-EOF idiom the
// teacher uses to end its MCP notification stream.
package alert

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Sink is anything an alert can be written to.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Stop(ctx context.Context) error
}

// BusinessGroup routes alerts whose yield_target matches Pattern (with
// `*` wildcards) to every sink in Sinks. First match wins.
type BusinessGroup struct {
	Name    string
	Pattern string
	Sinks   []Sink
}

// DispatcherConfig configures routing.
type DispatcherConfig struct {
	Groups       []BusinessGroup
	DefaultGroup []Sink // used when no BusinessGroup pattern matches
	ErrorGroup   []Sink // used additionally when a chosen group's write fails
}

// WriteFailureCounter is the observability seam for the error-group
// fallback: a sink write failure is always counted, whether or not an
// error group is configured to additionally receive the alert.
// Implemented by internal/metrics without this package importing it
// directly.
type WriteFailureCounter interface {
	IncSinkWriteFailure(group string)
}

type noopWriteFailureCounter struct{}

func (noopWriteFailureCounter) IncSinkWriteFailure(string) {}

// Dispatcher consumes a channel of Records and routes each to its
// business group's sinks.
type Dispatcher struct {
	cfg      DispatcherConfig
	in       <-chan Record
	log      *zap.Logger
	failures WriteFailureCounter
}

// New constructs a Dispatcher reading from in. The channel is expected to
// be closed by the producer (supervisor) to signal shutdown, never a
// cancellation token. A nil counter falls back to a no-op.
func New(in <-chan Record, cfg DispatcherConfig, log *zap.Logger, counter WriteFailureCounter) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if counter == nil {
		counter = noopWriteFailureCounter{}
	}
	return &Dispatcher{cfg: cfg, in: in, log: log.Named("alert_dispatcher"), failures: counter}
}

// Run drains the channel until it's closed, dispatching every record, then
// stops every configured sink exactly once before returning — the
// "receive no more messages, stop every sink, exit" shutdown contract.
func (d *Dispatcher) Run(ctx context.Context) {
	for rec := range d.in {
		d.dispatch(ctx, rec)
	}
	d.stopAllSinks(ctx)
}

// stopAllSinks calls Stop on every sink reachable from cfg.Groups,
// cfg.DefaultGroup, and cfg.ErrorGroup exactly once, even if the same sink
// instance is shared across more than one group.
func (d *Dispatcher) stopAllSinks(ctx context.Context) {
	seen := make(map[Sink]bool)
	stop := func(s Sink) {
		if seen[s] {
			return
		}
		seen[s] = true
		if err := s.Stop(ctx); err != nil {
			d.log.Error("sink stop failed", zap.Error(err))
			d.failures.IncSinkWriteFailure("shutdown")
		}
	}

	for _, s := range d.cfg.DefaultGroup {
		stop(s)
	}
	for _, g := range d.cfg.Groups {
		for _, s := range g.Sinks {
			stop(s)
		}
	}
	for _, s := range d.cfg.ErrorGroup {
		stop(s)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, rec Record) {
	group, ok := d.selectGroup(rec.YieldTarget)
	if !ok {
		if len(d.cfg.DefaultGroup) == 0 {
			d.log.Warn("no business group or default group for yield_target", zap.String("yield_target", rec.YieldTarget))
			return
		}
		d.writeToSinks(ctx, "default", d.cfg.DefaultGroup, rec, true)
		return
	}
	d.writeToSinks(ctx, group.Name, group.Sinks, rec, true)
}

func (d *Dispatcher) writeToSinks(ctx context.Context, groupName string, sinks []Sink, rec Record, fallbackToErrorGroup bool) {
	failed := false
	for _, s := range sinks {
		if err := s.Write(ctx, rec); err != nil {
			failed = true
			d.log.Error("sink write failed", zap.Error(err), zap.String("alert_id", rec.ID))
			d.failures.IncSinkWriteFailure(groupName)
		}
	}
	if failed && fallbackToErrorGroup && len(d.cfg.ErrorGroup) > 0 {
		d.writeToSinks(ctx, "error", d.cfg.ErrorGroup, rec, false)
	}
}

// selectGroup walks configured groups in order; first pattern match wins.
func (d *Dispatcher) selectGroup(yieldTarget string) (BusinessGroup, bool) {
	for _, g := range d.cfg.Groups {
		if matchPattern(g.Pattern, yieldTarget) {
			return g, true
		}
	}
	return BusinessGroup{}, false
}

// matchPattern supports a single `*` wildcard in a business-group pattern.
func matchPattern(pattern, target string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == target
	}
	parts := strings.SplitN(pattern, "*", 2)
	prefix, suffix := parts[0], parts[1]
	return strings.HasPrefix(target, prefix) && strings.HasSuffix(target, suffix) && len(target) >= len(prefix)+len(suffix)
}
