package cep

import (
	"testing"

	"github.com/warpfusion/warpfusion/internal/expr"
	"github.com/warpfusion/warpfusion/internal/wfvalue"
)

func simplePlan() RulePlan {
	return RulePlan{
		RuleName: "brute_force",
		Binds: map[string]Bind{
			"fail": {WindowName: "auth_events"},
		},
		MatchPlan: MatchPlan{
			Keys: []expr.Expr{expr.FieldRef{Name: "src_ip"}},
			EventSteps: []Step{
				{
					Branches: []Branch{
						{
							Source: "fail",
							Column: "src_ip",
							Pipe:   Pipe{Measure: MeasureCount, CompareOp: expr.OpGte, Threshold: 3},
						},
					},
				},
			},
		},
	}
}

func rowWithIP(ip string) expr.Row {
	return expr.Row{"src_ip": wfvalue.String(ip)}
}

func TestAdvanceSkipsOnNullScopeKey(t *testing.T) {
	m := NewStateMachine(simplePlan())
	res, expired := m.Advance("fail", expr.Row{}, 1)
	if res.Kind != Accumulate || expired != nil {
		t.Fatalf("expected Accumulate with no expiry on missing key, got %+v", res)
	}
}

func TestAdvanceMatchesWithNoCloseSteps(t *testing.T) {
	m := NewStateMachine(simplePlan())

	var last AdvanceResult
	for i := 0; i < 3; i++ {
		last, _ = m.Advance("fail", rowWithIP("1.2.3.4"), int64(i))
	}
	if last.Kind != Matched {
		t.Fatalf("expected Matched after threshold reached, got %v", last.Kind)
	}
	if last.Matched.ScopeKey == "" {
		t.Fatalf("expected a populated scope key")
	}
}

func TestAdvanceReturnsAccumulateBelowThreshold(t *testing.T) {
	m := NewStateMachine(simplePlan())
	res, _ := m.Advance("fail", rowWithIP("1.2.3.4"), 0)
	if res.Kind != Accumulate {
		t.Fatalf("expected Accumulate before threshold reached, got %v", res.Kind)
	}
}

func TestAdvanceIgnoresUnboundAlias(t *testing.T) {
	m := NewStateMachine(simplePlan())
	res, expired := m.Advance("unrelated", rowWithIP("1.2.3.4"), 0)
	if res.Kind != Accumulate || expired != nil {
		t.Fatalf("expected unbound alias to be a no-op")
	}
}

func TestMultiStepORBranchAdvancesOnFirstSatisfied(t *testing.T) {
	plan := RulePlan{
		RuleName: "two_step",
		Binds: map[string]Bind{
			"a": {WindowName: "w"},
			"b": {WindowName: "w"},
		},
		MatchPlan: MatchPlan{
			Keys: []expr.Expr{expr.FieldRef{Name: "k"}},
			EventSteps: []Step{
				{Branches: []Branch{
					{Source: "a", Pipe: Pipe{Measure: MeasureCount, CompareOp: expr.OpGte, Threshold: 1}},
					{Source: "b", Pipe: Pipe{Measure: MeasureCount, CompareOp: expr.OpGte, Threshold: 1}},
				}},
				{Branches: []Branch{
					{Source: "a", Pipe: Pipe{Measure: MeasureCount, CompareOp: expr.OpGte, Threshold: 1}},
				}},
			},
		},
	}
	m := NewStateMachine(plan)
	row := expr.Row{"k": wfvalue.String("x")}

	res1, _ := m.Advance("b", row, 0)
	if res1.Kind != Advance {
		t.Fatalf("expected step 1 to advance via OR-branch b, got %v", res1.Kind)
	}
	res2, _ := m.Advance("a", row, 1)
	if res2.Kind != Matched {
		t.Fatalf("expected match after step 2, got %v", res2.Kind)
	}
}

func TestMaxspanExpiryEmitsTimeoutCloseAndStartsFreshInstance(t *testing.T) {
	plan := simplePlan()
	plan.MatchPlan.WindowSpec = 100
	m := NewStateMachine(plan)

	m.Advance("fail", rowWithIP("1.2.3.4"), 0)
	_, expired := m.Advance("fail", rowWithIP("1.2.3.4"), 1000) // well past maxspan
	if expired == nil {
		t.Fatalf("expected maxspan violation to emit a timeout close")
	}
	if expired.Reason != ReasonTimeout {
		t.Fatalf("expected ReasonTimeout, got %v", expired.Reason)
	}
}

func TestScanExpiredClosesStaleInstances(t *testing.T) {
	plan := simplePlan()
	plan.MatchPlan.WindowSpec = 100
	m := NewStateMachine(plan)

	m.Advance("fail", rowWithIP("1.2.3.4"), 0)
	outs := m.ScanExpired(1000)
	if len(outs) != 1 || outs[0].Reason != ReasonTimeout {
		t.Fatalf("expected one timed-out close, got %+v", outs)
	}
	// a second scan should find nothing, the instance having been removed
	if outs2 := m.ScanExpired(2000); len(outs2) != 0 {
		t.Fatalf("expected no further expiries after the instance was removed")
	}
}

func TestCloseAllClosesEveryLiveInstanceWithEos(t *testing.T) {
	m := NewStateMachine(simplePlan())
	m.Advance("fail", rowWithIP("1.2.3.4"), 0)
	m.Advance("fail", rowWithIP("5.6.7.8"), 0)

	outs := m.CloseAll(ReasonEos)
	if len(outs) != 2 {
		t.Fatalf("expected 2 instances closed, got %d", len(outs))
	}
	for _, o := range outs {
		if o.Reason != ReasonEos {
			t.Fatalf("expected ReasonEos, got %v", o.Reason)
		}
	}
	if len(m.CloseAll(ReasonEos)) != 0 {
		t.Fatalf("expected no instances left after first CloseAll")
	}
}

func TestCloseStepsGateEventOKAndCloseOK(t *testing.T) {
	plan := RulePlan{
		RuleName: "with_close",
		Binds: map[string]Bind{
			"req":  {WindowName: "reqs"},
			"resp": {WindowName: "resps"},
		},
		MatchPlan: MatchPlan{
			Keys: []expr.Expr{expr.FieldRef{Name: "k"}},
			EventSteps: []Step{
				{Branches: []Branch{
					{Source: "req", Pipe: Pipe{Measure: MeasureCount, CompareOp: expr.OpGte, Threshold: 1}},
				}},
			},
			CloseSteps: []Step{
				{Branches: []Branch{
					{Source: "resp", Pipe: Pipe{Measure: MeasureCount, CompareOp: expr.OpGte, Threshold: 1}},
				}},
			},
		},
	}
	m := NewStateMachine(plan)
	row := expr.Row{"k": wfvalue.String("x")}

	res, _ := m.Advance("req", row, 0)
	if res.Kind != Advance {
		t.Fatalf("expected event_ok path to defer to close, got %v", res.Kind)
	}

	out, ok := m.Close("unknown-key", ReasonFlush)
	if ok {
		t.Fatalf("expected closing an unknown scope key to fail")
	}
	_ = out

	// Close without ever observing a "resp" event: close_ok should be false.
	key, _ := m.extractScopeKey(row)
	closed, ok := m.Close(key, ReasonFlush)
	if !ok {
		t.Fatalf("expected the live instance to be found")
	}
	if !closed.EventOK {
		t.Fatalf("expected event_ok true, since the single event_step was satisfied")
	}
	if closed.CloseOK {
		t.Fatalf("expected close_ok false, since no 'resp' event was ever observed")
	}
}

func TestCloseReasonGuardDiscriminatesByOrigin(t *testing.T) {
	plan := RulePlan{
		RuleName: "reason_gated",
		Binds:    map[string]Bind{"a": {WindowName: "w"}},
		MatchPlan: MatchPlan{
			Keys: []expr.Expr{expr.FieldRef{Name: "k"}},
			CloseSteps: []Step{
				{Branches: []Branch{
					{
						Source: "a",
						Guard:  expr.Binary{Op: expr.OpEq, Left: expr.CloseReasonRef{}, Right: expr.Literal{Value: wfvalue.String("flush")}},
						Pipe:   Pipe{Measure: MeasureCount, CompareOp: expr.OpGte, Threshold: 1},
					},
				}},
			},
		},
	}
	m := NewStateMachine(plan)
	row := expr.Row{"k": wfvalue.String("x")}
	m.Advance("a", row, 0)

	key, _ := m.extractScopeKey(row)
	out, ok := m.Close(key, ReasonTimeout)
	if !ok {
		t.Fatalf("expected instance found")
	}
	if out.CloseOK {
		t.Fatalf("expected close_ok false when reason doesn't match the guard")
	}

	m2 := NewStateMachine(plan)
	m2.Advance("a", row, 0)
	out2, _ := m2.Close(key, ReasonFlush)
	if !out2.CloseOK {
		t.Fatalf("expected close_ok true when reason matches the guard")
	}
}
