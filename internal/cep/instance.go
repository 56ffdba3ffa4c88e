// instance.go — Instance: one live CEP instance, keyed by its scope-key
// tuple. Exclusively owned by the rule task's single goroutine — never
// shared.
package cep

import "github.com/warpfusion/warpfusion/internal/expr"

// rawEvent is one bind-filtered event retained for close-step evaluation.
// close_steps are evaluated once, at close time, rather than incrementally
// — which means their guards (which may reference the close_reason
// pseudo-field, unknown until close) can only be applied then. Retaining
// the filtered events for the instance's lifetime is the price of that:
// bounded by the rule's window_spec duration, the same data volume
// already held by the window the events came from.
type rawEvent struct {
	alias string
	row   expr.Row
}

// Instance tracks one scope-key's progress through a rule's event_steps.
type Instance struct {
	ScopeKey    string
	CreatedAt   int64
	CurrentStep int
	EventOK     bool

	CompletedSteps []StepData

	stepBranches []*BranchState // accumulators for event_steps[CurrentStep]
	events       []rawEvent     // retained for close_steps evaluation
}

func newInstance(plan RulePlan, scopeKey string, createdAt int64) *Instance {
	inst := &Instance{
		ScopeKey:  scopeKey,
		CreatedAt: createdAt,
	}
	inst.resetStepBranches(plan, 0)
	return inst
}

func (inst *Instance) resetStepBranches(plan RulePlan, stepIdx int) {
	if stepIdx >= len(plan.MatchPlan.EventSteps) {
		inst.stepBranches = nil
		return
	}
	branches := plan.MatchPlan.EventSteps[stepIdx].Branches
	inst.stepBranches = make([]*BranchState, len(branches))
	for i, br := range branches {
		inst.stepBranches[i] = NewBranchState(br.Pipe.Distinct)
	}
}
