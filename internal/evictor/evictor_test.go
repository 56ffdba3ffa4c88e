package evictor

import (
	"testing"

	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/wfltest"
	"github.com/warpfusion/warpfusion/internal/window"
)

func TestTimePhaseEvictsExpiredBatches(t *testing.T) {
	reg, err := registry.Build([]window.Def{
		{Name: "w1", TimeField: "ts", Over: 100},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, _ := reg.GetWindow("w1")
	w.Append(wfltest.BuildBatch([]wfltest.Row{{"ts": int64(0)}}))
	w.Append(wfltest.BuildBatch([]wfltest.Row{{"ts": int64(1000)}}))

	ev := New(reg, Config{}, nil)
	ev.Sweep(1000)

	if w.BatchCount() != 1 {
		t.Fatalf("expected expired batch evicted, count=%d", w.BatchCount())
	}
}

func TestMemoryPhaseShedsUntilUnderCap(t *testing.T) {
	reg, err := registry.Build([]window.Def{
		{Name: "w1", TimeField: "ts"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, _ := reg.GetWindow("w1")
	for i := 0; i < 10; i++ {
		w.Append(wfltest.BuildBatch([]wfltest.Row{{"ts": int64(i), "v": float64(i)}}))
	}
	usageBefore := w.MemoryUsage()
	if usageBefore <= 0 {
		t.Fatalf("expected nonzero usage to set up the test")
	}

	ev := New(reg, Config{MaxTotalBytes: usageBefore / 2, Policy: TimeFirst}, nil)
	ev.Sweep(0)

	if w.MemoryUsage() > usageBefore/2 {
		t.Fatalf("expected memory phase to shed batches under the cap: usage=%d cap=%d", w.MemoryUsage(), usageBefore/2)
	}
}

func TestMemoryPhasePrefersOldestWindowUnderTimeFirst(t *testing.T) {
	reg, err := registry.Build([]window.Def{
		{Name: "older", TimeField: "ts"},
		{Name: "newer", TimeField: "ts"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	older, _ := reg.GetWindow("older")
	newer, _ := reg.GetWindow("newer")

	older.Append(wfltest.BuildBatch([]wfltest.Row{{"ts": int64(0), "v": float64(1)}}))
	newer.Append(wfltest.BuildBatch([]wfltest.Row{{"ts": int64(1_000_000), "v": float64(1)}}))

	total := older.MemoryUsage() + newer.MemoryUsage()

	ev := New(reg, Config{MaxTotalBytes: total - 1, Policy: TimeFirst}, nil)
	ev.Sweep(2_000_000)

	if older.BatchCount() != 0 {
		t.Fatalf("expected the window with the oldest batch to be shed first")
	}
	if newer.BatchCount() != 1 {
		t.Fatalf("expected the newer window untouched")
	}
}

func TestMemoryPhaseNoopWhenCapUnset(t *testing.T) {
	reg, err := registry.Build([]window.Def{{Name: "w1", TimeField: "ts"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, _ := reg.GetWindow("w1")
	w.Append(wfltest.BuildBatch([]wfltest.Row{{"ts": int64(1)}}))

	ev := New(reg, Config{}, nil)
	ev.Sweep(0)

	if w.BatchCount() != 1 {
		t.Fatalf("expected no eviction when MaxTotalBytes is unset")
	}
}

func TestMemoryPhaseStopsWhenNoWindowHasBatches(t *testing.T) {
	reg, err := registry.Build([]window.Def{{Name: "w1", TimeField: "ts"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := New(reg, Config{MaxTotalBytes: 1, Policy: MemoryFirst}, nil)

	// Must return rather than loop forever when nothing is left to shed.
	ev.Sweep(0)
}
