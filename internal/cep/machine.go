// machine.go — StateMachine: advances CEP instances on incoming events
// and closes them on timeout/flush/eos. Grounded structurally on the
// teacher's SessionManager (internal/session/sessions.go): a name-keyed
// map of live state, owned by one caller, mutated in place and never
// shared — generalized here from session snapshots to per-scope-key CEP
// instances.
package cep

import (
	"github.com/warpfusion/warpfusion/internal/expr"
	"github.com/warpfusion/warpfusion/internal/wfvalue"
)

// StateMachine owns every live Instance for one compiled rule.
type StateMachine struct {
	plan      RulePlan
	instances map[string]*Instance
}

// NewStateMachine constructs a StateMachine for a rule plan. Never shared
// across goroutines — one rule task owns it exclusively.
func NewStateMachine(plan RulePlan) *StateMachine {
	return &StateMachine{
		plan:      plan,
		instances: make(map[string]*Instance),
	}
}

// Advance processes one event arriving on the given alias, running the
// instance through bind-filter, scope-key extraction, fetch-or-create,
// maxspan check, and step advancement in turn. Returns the on-event
// result and, separately, a CloseOutput if the maxspan check forced an
// expired instance closed first.
func (m *StateMachine) Advance(alias string, event expr.Row, eventTimeNS int64) (AdvanceResult, *CloseOutput) {
	bind, ok := m.plan.Binds[alias]
	if !ok {
		return AdvanceResult{Kind: Accumulate}, nil
	}

	// 1. bind-level filter.
	if bind.Filter != nil && !wfvalue.Truthy(bind.Filter.Eval(event)) {
		return AdvanceResult{Kind: Accumulate}, nil
	}

	// 2. scope key.
	scopeKey, ok := m.extractScopeKey(event)
	if !ok {
		return AdvanceResult{Kind: Accumulate}, nil
	}

	// 3. fetch-or-create.
	inst, existed := m.instances[scopeKey]
	if !existed {
		inst = newInstance(m.plan, scopeKey, eventTimeNS)
		m.instances[scopeKey] = inst
	}

	// 4. maxspan check.
	var expired *CloseOutput
	if existed && m.plan.MatchPlan.WindowSpec > 0 && eventTimeNS-inst.CreatedAt > int64(m.plan.MatchPlan.WindowSpec) {
		out := m.closeInstance(inst, ReasonTimeout)
		expired = &out
		inst = newInstance(m.plan, scopeKey, eventTimeNS)
		m.instances[scopeKey] = inst
	}

	inst.events = append(inst.events, rawEvent{alias: alias, row: event})

	if inst.CurrentStep >= len(m.plan.MatchPlan.EventSteps) {
		// already fully matched and awaiting close; nothing further to
		// advance on the event-step path.
		return AdvanceResult{Kind: Accumulate}, expired
	}

	step := m.plan.MatchPlan.EventSteps[inst.CurrentStep]
	satisfiedBranch := -1
	for i, br := range step.Branches {
		if br.Source != alias {
			continue
		}
		if br.Guard != nil && !wfvalue.Truthy(br.Guard.Eval(event)) {
			continue
		}
		inst.stepBranches[i].Observe(fieldValue(br.Column, event))
		if satisfiedBranch == -1 && inst.stepBranches[i].SatisfiesThreshold(br.Pipe) {
			satisfiedBranch = i
		}
	}

	if satisfiedBranch == -1 {
		return AdvanceResult{Kind: Accumulate}, expired
	}

	br := step.Branches[satisfiedBranch]
	inst.CompletedSteps = append(inst.CompletedSteps, StepData{
		StepIndex:   inst.CurrentStep,
		BranchLabel: br.Label,
		Source:      br.Source,
		Value:       inst.stepBranches[satisfiedBranch].Value(br.Pipe.Measure),
	})
	inst.CurrentStep++
	inst.resetStepBranches(m.plan, inst.CurrentStep)

	if inst.CurrentStep < len(m.plan.MatchPlan.EventSteps) {
		return AdvanceResult{Kind: Advance}, expired
	}

	inst.EventOK = true
	if len(m.plan.MatchPlan.CloseSteps) == 0 {
		// No on-close: this event itself is the match.
		return AdvanceResult{
			Kind: Matched,
			Matched: &MatchedContext{
				RuleName:       m.plan.RuleName,
				ScopeKey:       scopeKey,
				EventTimeNS:    eventTimeNS,
				CompletedSteps: append([]StepData(nil), inst.CompletedSteps...),
			},
		}, expired
	}
	// on_close exists: defer to close evaluation.
	return AdvanceResult{Kind: Advance}, expired
}

func (m *StateMachine) extractScopeKey(event expr.Row) (string, bool) {
	values := make([]wfvalue.Value, len(m.plan.MatchPlan.Keys))
	for i, k := range m.plan.MatchPlan.Keys {
		v := k.Eval(event)
		if v.IsNull() {
			return "", false
		}
		values[i] = v
	}
	return wfvalue.EncodeKey(values), true
}

func fieldValue(column string, event expr.Row) wfvalue.Value {
	if column == "" {
		return wfvalue.Null
	}
	return expr.FieldRef{Name: column}.Eval(event)
}

// Close explicitly closes one instance by scope key.
func (m *StateMachine) Close(scopeKey string, reason CloseReason) (CloseOutput, bool) {
	inst, ok := m.instances[scopeKey]
	if !ok {
		return CloseOutput{}, false
	}
	out := m.closeInstance(inst, reason)
	delete(m.instances, scopeKey)
	return out, true
}

// ScanExpired closes every instance whose maxspan has elapsed relative to
// watermarkNS, reason Timeout.
func (m *StateMachine) ScanExpired(watermarkNS int64) []CloseOutput {
	if m.plan.MatchPlan.WindowSpec <= 0 {
		return nil
	}
	var out []CloseOutput
	for key, inst := range m.instances {
		if inst.CreatedAt+int64(m.plan.MatchPlan.WindowSpec) < watermarkNS {
			out = append(out, m.closeInstance(inst, ReasonTimeout))
			delete(m.instances, key)
		}
	}
	return out
}

// CloseAll closes every live instance, used at shutdown (Eos) or explicit
// flush (Flush).
func (m *StateMachine) CloseAll(reason CloseReason) []CloseOutput {
	out := make([]CloseOutput, 0, len(m.instances))
	for key, inst := range m.instances {
		out = append(out, m.closeInstance(inst, reason))
		delete(m.instances, key)
	}
	return out
}

// closeInstance evaluates close_steps once, over the instance's retained
// events, with the close_reason pseudo-field bound so close guards can
// discriminate by origin. close_ok is the conjunction across close steps
// of "some branch in the step reached its threshold" — the close-side
// analogue of event_steps' step-gating, evaluated once rather than
// incrementally.
func (m *StateMachine) closeInstance(inst *Instance, reason CloseReason) CloseOutput {
	closeOK := true
	var closeData []StepData

	for i, step := range m.plan.MatchPlan.CloseSteps {
		stepSatisfied := false
		for _, br := range step.Branches {
			bs := NewBranchState(br.Pipe.Distinct)
			for _, ev := range inst.events {
				if ev.alias != br.Source {
					continue
				}
				row := withCloseReason(ev.row, reason)
				if br.Guard != nil && !wfvalue.Truthy(br.Guard.Eval(row)) {
					continue
				}
				bs.Observe(fieldValue(br.Column, row))
			}
			if !bs.SatisfiesThreshold(br.Pipe) {
				continue
			}
			closeData = append(closeData, StepData{
				StepIndex:   i,
				BranchLabel: br.Label,
				Source:      br.Source,
				Value:       bs.Value(br.Pipe.Measure),
			})
			stepSatisfied = true
			break
		}
		if !stepSatisfied {
			closeOK = false
		}
	}

	return CloseOutput{
		RuleName:       m.plan.RuleName,
		ScopeKey:       inst.ScopeKey,
		Reason:         reason,
		EventOK:        inst.EventOK,
		CloseOK:        closeOK,
		CompletedSteps: append([]StepData(nil), inst.CompletedSteps...),
		CloseStepData:  closeData,
	}
}

func withCloseReason(base expr.Row, reason CloseReason) expr.Row {
	row := make(expr.Row, len(base)+1)
	for k, v := range base {
		row[k] = v
	}
	row["close_reason"] = wfvalue.String(string(reason))
	return row
}
