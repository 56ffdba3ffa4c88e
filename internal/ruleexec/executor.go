// executor.go — Executor: turns CEP Matched/CloseOutput results into
// AlertRecords. Grounded on
// _examples/other_examples/120b8ff6_marocz-ObsidianStack__server-internal-
// alerts-engine.go.go's Engine.Evaluate: building an Alert struct from a
// fired condition with a deterministic, formatted id — adapted here to a
// score-expression contract and seq-disambiguated id scheme instead of
// ObsidianStack's cooldown-gated webhook firing.
package ruleexec

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/expr"
	"github.com/warpfusion/warpfusion/internal/wfvalue"
)

// ErrNonNumericScore is returned (and logged, not propagated as an alert)
// when a rule's score expression evaluates to something other than a
// number: the result must be numeric, and non-numeric results are treated
// as a rule-evaluation failure.
var ErrNonNumericScore = errors.New("ruleexec: score expression did not evaluate to a number")

// ErrorCounter is the observability seam for rule execution errors,
// incrementing a counter per failed rule. Implemented by internal/metrics
// without ruleexec importing it directly.
type ErrorCounter interface {
	IncRuleExecutionError(ruleName string)
}

type noopErrorCounter struct{}

func (noopErrorCounter) IncRuleExecutionError(string) {}

// Executor builds AlertRecords for one compiled rule.
type Executor struct {
	ruleName    string
	scoreExpr   expr.Expr
	entityExpr  expr.Expr
	yieldTarget string
	log         *zap.Logger
	errors      ErrorCounter

	mu      sync.Mutex
	nextSeq map[string]uint64 // bucket (rule|scope_key|fired_at) -> next seq to assign
}

// New constructs an Executor for one rule's score/entity expressions and
// yield target. A nil counter falls back to a no-op.
func New(plan cep.RulePlan, log *zap.Logger, counter ErrorCounter) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if counter == nil {
		counter = noopErrorCounter{}
	}
	return &Executor{
		ruleName:    plan.RuleName,
		scoreExpr:   plan.ScoreExpr,
		entityExpr:  plan.EntityExpr,
		yieldTarget: plan.YieldTarget,
		log:         log.Named("ruleexec").With(zap.String("rule", plan.RuleName)),
		errors:      counter,
		nextSeq:     make(map[string]uint64),
	}
}

// ExecuteMatch builds an AlertRecord from an immediate Matched result,
// where close_reason is always empty.
func (e *Executor) ExecuteMatch(mc *cep.MatchedContext) (*alert.Record, error) {
	row := buildRow(mc.CompletedSteps, nil, "")
	return e.build(mc.ScopeKey, mc.EventTimeNS, "", row)
}

// ExecuteClose builds an AlertRecord from a CloseOutput, but only when
// event_ok ∧ close_ok — partially satisfied instances are silently
// discarded. Returns (nil, nil) for a discarded close.
func (e *Executor) ExecuteClose(out cep.CloseOutput, firedAtNS int64) (*alert.Record, error) {
	if !(out.EventOK && out.CloseOK) {
		return nil, nil
	}
	row := buildRow(out.CompletedSteps, out.CloseStepData, string(out.Reason))
	rec, err := e.build(out.ScopeKey, firedAtNS, string(out.Reason), row)
	return rec, err
}

func (e *Executor) build(scopeKey string, firedAtNS int64, closeReason string, row expr.Row) (*alert.Record, error) {
	scoreVal := e.scoreExpr.Eval(row)
	score, ok := scoreVal.Number()
	if !ok {
		e.log.Warn("score expression did not evaluate to a number",
			zap.String("scope_key", scopeKey),
		)
		e.errors.IncRuleExecutionError(e.ruleName)
		return nil, ErrNonNumericScore
	}
	score = clamp(score, 0, 100)

	var entity string
	if e.entityExpr != nil {
		ev := e.entityExpr.Eval(row)
		entity = ev.Canonical()
		if s, ok := ev.String(); ok {
			entity = s
		}
	}

	seq := e.reserveSeq(scopeKey, firedAtNS)
	rec := &alert.Record{
		ID:          alert.NewID(e.ruleName, scopeKey, firedAtNS, seq),
		RuleName:    e.ruleName,
		ScopeKey:    scopeKey,
		CloseReason: closeReason,
		YieldTarget: e.yieldTarget,
		Score:       score,
		Entity:      entity,
		FiredAtNS:   firedAtNS,
		Seq:         seq,
	}
	return rec, nil
}

func (e *Executor) reserveSeq(scopeKey string, firedAtNS int64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	bucket := fmt.Sprintf("%s|%s|%d", e.ruleName, scopeKey, firedAtNS)
	seq := e.nextSeq[bucket]
	e.nextSeq[bucket] = seq + 1
	return seq
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func buildRow(completed, closeData []cep.StepData, closeReason string) expr.Row {
	row := make(expr.Row, len(completed)+len(closeData)+1)
	for _, sd := range completed {
		row[stepKey(sd)] = sd.Value
	}
	for _, sd := range closeData {
		row["close_"+stepKey(sd)] = sd.Value
	}
	if closeReason != "" {
		row["close_reason"] = wfvalue.String(closeReason)
	}
	return row
}

func stepKey(sd cep.StepData) string {
	if sd.BranchLabel != "" {
		return sd.BranchLabel
	}
	return fmt.Sprintf("step%d", sd.StepIndex)
}
