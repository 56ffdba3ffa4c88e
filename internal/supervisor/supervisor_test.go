package supervisor

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/config"
	"github.com/warpfusion/warpfusion/internal/expr"
	"github.com/warpfusion/warpfusion/internal/wfvalue"
	"github.com/warpfusion/warpfusion/internal/window"
)

type fakeSink struct {
	mu   sync.Mutex
	recs []alert.Record
}

func (s *fakeSink) Write(_ context.Context, rec alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *fakeSink) Stop(context.Context) error { return nil }

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func testRulePlan() cep.RulePlan {
	return cep.RulePlan{
		RuleName: "brute_force",
		Binds: map[string]cep.Bind{
			"a": {WindowName: "auth_failures"},
		},
		MatchPlan: cep.MatchPlan{
			Keys: []expr.Expr{expr.FieldRef{Name: "src_ip"}},
			EventSteps: []cep.Step{
				{Branches: []cep.Branch{
					{Source: "a", Pipe: cep.Pipe{Measure: cep.MeasureCount, CompareOp: expr.OpGte, Threshold: 3}},
				}},
			},
		},
		ScoreExpr:   expr.Literal{Value: wfvalue.Number(90)},
		YieldTarget: "security.brute_force",
	}
}

func testConfig(t *testing.T, sink *fakeSink) Config {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln.Close() // supervisor.New rebinds via its own listen(); free the ephemeral port first

	return Config{
		Runtime: func() config.RuntimeConfig {
			rt := config.Defaults()
			rt.Listen = "tcp://" + ln.Addr().String()
			return rt
		}(),
		WindowDef: []window.Def{
			{Name: "auth_failures", Streams: []string{"auth"}, TimeField: "event_time", Over: time.Hour},
		},
		RulePlans: []cep.RulePlan{testRulePlan()},
		Sinks: alert.DispatcherConfig{
			DefaultGroup: []alert.Sink{sink},
		},
	}
}

func TestNewBuildsEveryComponent(t *testing.T) {
	sink := &fakeSink{}
	cfg := testConfig(t, sink)

	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if eng.reg == nil || eng.rt == nil || eng.ev == nil || eng.receiver == nil || eng.dispatcher == nil {
		t.Fatalf("expected every component constructed, got %+v", eng)
	}
	if len(eng.tasks) != 1 {
		t.Fatalf("expected 1 rule task, got %d", len(eng.tasks))
	}
}

func TestNewRejectsUnknownWindowBinding(t *testing.T) {
	sink := &fakeSink{}
	cfg := testConfig(t, sink)
	plan := testRulePlan()
	plan.Binds["a"] = cep.Bind{WindowName: "does_not_exist"}
	cfg.RulePlans = []cep.RulePlan{plan}

	if _, err := New(cfg); err == nil {
		t.Fatalf("expected an error for a rule binding an unknown window")
	}
}

func TestNewRejectsMalformedListenAddress(t *testing.T) {
	sink := &fakeSink{}
	cfg := testConfig(t, sink)
	cfg.Runtime.Listen = "not-a-url"

	if _, err := New(cfg); err == nil {
		t.Fatalf("expected an error for a malformed listen address")
	}
}

func TestRunShutsDownCleanlyWithNoTraffic(t *testing.T) {
	sink := &fakeSink{}
	cfg := testConfig(t, sink)
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for Run to exit")
	}
}
