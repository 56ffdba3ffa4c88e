// task.go — Task: one asynchronous rule task per compiled rule. Owns its
// CepStateMachine and rule executor
// exclusively; no synchronisation on machine state is required since
// nothing else ever touches either. The three-phase loop (prepare wakeups
// / drain / wait) is grounded on the teacher's dev-console bridge
// respawn-retry shape (cmd/dev-console/bridge.go's
// "select { case <-done: case <-time.After(timeout): }" guarded step) for
// the per-batch timeout wrapper, and on the teacher's
// runMCPMode background-goroutine-plus-select-loop split
// (cmd/dev-console/main.go) for the general supervised-loop shape.
package ruletask

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/expr"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/ruleexec"
	"github.com/warpfusion/warpfusion/internal/window"
)

// DefaultTimeoutScanInterval is the default timeout-scan tick period.
const DefaultTimeoutScanInterval = time.Second

// DefaultRuleExecTimeout is the default for rule_exec_timeout.
const DefaultRuleExecTimeout = 30 * time.Second

// WindowSource is one window this rule reads, along with every alias the
// rule's `events` block binds to it (our compiled cep.RulePlan.Binds maps
// alias directly to a window name, since Window itself retains no
// per-batch stream identity once the Router has appended into it — see
// DESIGN.md).
type WindowSource struct {
	WindowName string
	Handle     *window.Window
	Notifier   *registry.Notifier
	Aliases    []string
}

// TimeoutCounter is the observability seam for per-batch join/execution
// timeouts: a batch that times out is skipped and an error counter
// incremented. Implemented by internal/metrics without this package
// importing it directly.
type TimeoutCounter interface {
	IncJoinTimeout(ruleName string)
}

type noopTimeoutCounter struct{}

func (noopTimeoutCounter) IncJoinTimeout(string) {}

// Config is the construction input for a Task.
type Config struct {
	Plan     cep.RulePlan
	Executor *ruleexec.Executor
	Sources  []WindowSource
	Alerts   chan<- alert.Record

	TimeoutScanInterval time.Duration // default DefaultTimeoutScanInterval
	RuleExecTimeout     time.Duration // default DefaultRuleExecTimeout

	Log      *zap.Logger
	Timeouts TimeoutCounter
}

// Task is one compiled rule's asynchronous evaluation loop.
type Task struct {
	ruleName            string
	machine             *cep.StateMachine
	executor            *ruleexec.Executor
	sources             []WindowSource
	wakeups             []<-chan struct{} // one per source, registered once at construction
	alerts              chan<- alert.Record
	timeoutScanInterval time.Duration
	ruleExecTimeout     time.Duration
	log                 *zap.Logger
	timeouts            TimeoutCounter

	cursor map[string]uint64
}

// New constructs a Task. Cursors are initialized from each source's
// current next_seq: a rule task never replays history on startup.
func New(cfg Config) *Task {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	timeouts := cfg.Timeouts
	if timeouts == nil {
		timeouts = noopTimeoutCounter{}
	}
	scanInterval := cfg.TimeoutScanInterval
	if scanInterval <= 0 {
		scanInterval = DefaultTimeoutScanInterval
	}
	execTimeout := cfg.RuleExecTimeout
	if execTimeout <= 0 {
		execTimeout = DefaultRuleExecTimeout
	}

	cursor := make(map[string]uint64, len(cfg.Sources))
	wakeups := make([]<-chan struct{}, len(cfg.Sources))
	for i, src := range cfg.Sources {
		cursor[src.WindowName] = src.Handle.NextSeq()
		wakeups[i] = src.Notifier.Subscribe()
	}

	return &Task{
		ruleName:            cfg.Plan.RuleName,
		machine:             cep.NewStateMachine(cfg.Plan),
		executor:            cfg.Executor,
		sources:             cfg.Sources,
		wakeups:             wakeups,
		alerts:              cfg.Alerts,
		timeoutScanInterval: scanInterval,
		ruleExecTimeout:     execTimeout,
		log:                 log.Named("rule_task").With(zap.String("rule", cfg.Plan.RuleName)),
		timeouts:            timeouts,
		cursor:              cursor,
	}
}

// Run executes the task's main loop until ctx (the rule_cancel token) is
// cancelled. On cancellation it performs one final drain, closes every
// live instance with ReasonEos, flushes the resulting alerts, and returns
// — a loss-free shutdown.
func (t *Task) Run(ctx context.Context) error {
	wake := t.fanInWakeups(ctx)

	scanTicker := time.NewTicker(t.timeoutScanInterval)
	defer scanTicker.Stop()

	for {
		if err := t.drain(ctx); err != nil {
			return err
		}

		select {
		case <-wake:
			continue
		case <-scanTicker.C:
			if err := t.scanExpired(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			if err := t.drain(ctx); err != nil {
				return err
			}
			return t.closeAll(ctx)
		}
	}
}

// fanInWakeups starts one forwarding goroutine per source, each draining
// its own Subscribe() channel into a single aggregated, coalesced channel
// the main loop selects over. A dynamic multi-channel select (reflect.
// Select) has no precedent anywhere in this codebase's lineage; forwarding
// goroutines are the ordinary Go idiom instead. Each forwarder exits when
// ctx is done.
func (t *Task) fanInWakeups(ctx context.Context) <-chan struct{} {
	agg := make(chan struct{}, 1)
	for _, w := range t.wakeups {
		go func(src <-chan struct{}) {
			for {
				select {
				case <-src:
					select {
					case agg <- struct{}{}:
					default:
					}
				case <-ctx.Done():
					return
				}
			}
		}(w)
	}
	return agg
}

// drain reads every source since its cursor, materializes rows, and
// advances the state machine.
func (t *Task) drain(ctx context.Context) error {
	for _, src := range t.sources {
		batches, newCursor, gapDetected := src.Handle.ReadSince(t.cursor[src.WindowName])
		t.cursor[src.WindowName] = newCursor
		if gapDetected {
			t.log.Warn("eviction overtook rule task cursor; resuming from oldest retained batch",
				zap.String("window", src.WindowName))
		}

		timeField := src.Handle.Def().TimeField
		for _, tb := range batches {
			if err := t.processBatch(ctx, src, tb, timeField); err != nil {
				return err
			}
		}
	}
	return nil
}

// processBatch materializes one batch's rows and advances the machine on
// them, guarded by rule_exec_timeout: a pathological rule cannot stall
// the task — on timeout, the batch is skipped and an error counter
// incremented.
func (t *Task) processBatch(ctx context.Context, src WindowSource, tb window.TimedBatch, timeField string) error {
	defer tb.Batch.Release()

	rows, times := materializeRows(tb.Batch, timeField)

	done := make(chan error, 1)
	go func() {
		done <- t.advanceRows(src, rows, times)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(t.ruleExecTimeout):
		t.log.Warn("rule_exec_timeout exceeded; skipping batch", zap.String("window", src.WindowName))
		t.timeouts.IncJoinTimeout(t.ruleName)
		return nil
	}
}

func (t *Task) advanceRows(src WindowSource, rows []expr.Row, times []int64) error {
	for i, row := range rows {
		for _, alias := range src.Aliases {
			result, expired := t.machine.Advance(alias, row, times[i])
			if expired != nil {
				if err := t.emitClose(*expired, times[i]); err != nil {
					return err
				}
			}
			if result.Kind == cep.Matched {
				if err := t.emitMatch(result.Matched); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (t *Task) emitMatch(mc *cep.MatchedContext) error {
	rec, err := t.executor.ExecuteMatch(mc)
	if err != nil {
		// rule execution errors are suppressed, not fatal.
		return nil
	}
	return t.send(rec)
}

func (t *Task) emitClose(out cep.CloseOutput, firedAtNS int64) error {
	rec, err := t.executor.ExecuteClose(out, firedAtNS)
	if err != nil {
		return nil
	}
	if rec == nil {
		// partially satisfied instance: discarded silently.
		return nil
	}
	return t.send(rec)
}

// send delivers rec to the alert channel, blocking while the channel is
// full. A full channel is ordinary back-pressure, not an error: it slows
// this task's drain loop, letting window buffers absorb the burst while
// the evictor's memory cap does its job. Sending on a channel the
// dispatcher has already closed panics; that's the one fatal send error
// for this task, so it's recovered and surfaced as an error instead of
// crashing the process (grounded on internal/util/safego.go's
// recover-and-report shape).
func (t *Task) send(rec *alert.Record) (err error) {
	if rec == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule task %s: alert channel closed: %v", t.ruleName, r)
		}
	}()
	t.alerts <- *rec
	return nil
}

// scanExpired advances the timeout-scan path.
func (t *Task) scanExpired(_ context.Context) error {
	watermark := t.lowestWatermark()
	for _, out := range t.machine.ScanExpired(watermark) {
		if err := t.emitClose(out, watermark); err != nil {
			return err
		}
	}
	return nil
}

// lowestWatermark takes the minimum watermark across every bound source,
// the conservative choice for a rule reading more than one window: a
// maxspan close must not fire ahead of the slowest-advancing source.
func (t *Task) lowestWatermark() int64 {
	var min int64
	first := true
	for _, src := range t.sources {
		wm := src.Handle.Watermark()
		if first || wm < min {
			min = wm
			first = false
		}
	}
	return min
}

// closeAll performs the terminal Eos close and flushes every resulting
// alert before the task exits.
func (t *Task) closeAll(_ context.Context) error {
	firedAt := batch.Now()
	for _, out := range t.machine.CloseAll(cep.ReasonEos) {
		if err := t.emitClose(out, firedAt); err != nil {
			return fmt.Errorf("rule task %s: final flush: %w", t.ruleName, err)
		}
	}
	return nil
}
