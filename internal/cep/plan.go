// plan.go — RulePlan: the compiled, immutable input to a StateMachine. A
// plan is built once by a compiler outside this package's scope and never
// mutated afterward.
package cep

import (
	"time"

	"github.com/warpfusion/warpfusion/internal/expr"
)

// Measure names the aggregate function a branch's pipe ends in.
type Measure uint8

const (
	MeasureCount Measure = iota
	MeasureSum
	MeasureAvg
	MeasureMin
	MeasureMax
)

// Pipe is zero or more transforms (currently just Distinct) followed by a
// measure and a threshold comparison.
type Pipe struct {
	Distinct  bool
	Measure   Measure
	CompareOp expr.BinOp // one of OpGte, OpGt, OpEq, OpNeq, OpLt, OpLte
	Threshold float64
}

// Branch is one OR-branch within a Step.
type Branch struct {
	Label  string // optional, used for later-step cross-reference and StepData naming
	Source string // alias this branch reads from
	Column string // optional field selector the pipe measures; empty for plain count
	Guard  expr.Expr // optional inline guard; nil means "always true"
	Pipe   Pipe
}

// Step is one position in event_steps or close_steps: a set of OR
// branches, any one of which satisfies the step.
type Step struct {
	Branches []Branch
}

// Bind is one alias's (window, filter) pairing from the rule's `events`
// block.
type Bind struct {
	WindowName string
	Filter     expr.Expr // optional; nil means no filter
}

// MatchPlan is the keys/window/steps contract a StateMachine advances
// against.
type MatchPlan struct {
	Keys       []expr.Expr   // scope-key expressions, evaluated in order
	WindowSpec time.Duration // maxspan D
	EventSteps []Step
	CloseSteps []Step
}

// RulePlan is the full compiled rule.
type RulePlan struct {
	RuleName  string
	Binds     map[string]Bind
	MatchPlan MatchPlan

	// ScoreExpr and EntityExpr are evaluated by the rule executor
	// (internal/ruleexec), not by the state machine; carried here because
	// they're part of the same compiled plan.
	ScoreExpr  expr.Expr
	EntityExpr expr.Expr

	YieldTarget string
}
