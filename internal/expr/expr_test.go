package expr

import (
	"testing"

	"github.com/warpfusion/warpfusion/internal/wfvalue"
)

func TestFieldRefMissingIsNull(t *testing.T) {
	v := FieldRef{Name: "missing"}.Eval(Row{})
	if !v.IsNull() {
		t.Fatalf("expected null for missing field")
	}
}

func TestBinaryAndThreeValued(t *testing.T) {
	row := Row{}
	expr := Binary{Op: OpAnd, Left: Literal{wfvalue.Bool(false)}, Right: FieldRef{"missing"}}
	got := expr.Eval(row)
	if b, ok := got.Bool(); !ok || b != false {
		t.Fatalf("expected false ∧ null = false, got %v", got)
	}
}

func TestBinaryOrThreeValued(t *testing.T) {
	expr := Binary{Op: OpOr, Left: Literal{wfvalue.Bool(true)}, Right: FieldRef{"missing"}}
	got := expr.Eval(Row{})
	if b, ok := got.Bool(); !ok || b != true {
		t.Fatalf("expected true ∨ null = true, got %v", got)
	}
}

func TestComparisonAcrossIncompatibleTypesIsNull(t *testing.T) {
	row := Row{"a": wfvalue.Number(1), "b": wfvalue.String("x")}
	expr := Binary{Op: OpGte, Left: FieldRef{"a"}, Right: FieldRef{"b"}}
	if !expr.Eval(row).IsNull() {
		t.Fatalf("expected cross-type comparison to be null")
	}
}

func TestComparisonWithNullOperandIsNull(t *testing.T) {
	row := Row{"a": wfvalue.Number(5)}
	expr := Binary{Op: OpGte, Left: FieldRef{"a"}, Right: FieldRef{"missing"}}
	if !expr.Eval(row).IsNull() {
		t.Fatalf("expected comparison with a null operand to be null")
	}
}

func TestNumericThresholdComparison(t *testing.T) {
	row := Row{"count": wfvalue.Number(5)}
	expr := Binary{Op: OpGte, Left: FieldRef{"count"}, Right: Literal{wfvalue.Number(3)}}
	got, ok := expr.Eval(row).Bool()
	if !ok || !got {
		t.Fatalf("expected 5 >= 3 to be true")
	}
}

func TestEqualityOnStrings(t *testing.T) {
	row := Row{"close_reason": wfvalue.String("timeout")}
	expr := Binary{Op: OpEq, Left: CloseReasonRef{}, Right: Literal{wfvalue.String("timeout")}}
	got, ok := expr.Eval(row).Bool()
	if !ok || !got {
		t.Fatalf("expected close_reason == 'timeout' to be true")
	}
}

func TestNotNegatesThreeValued(t *testing.T) {
	if v, ok := Not{Literal{wfvalue.Bool(true)}}.Eval(Row{}).Bool(); !ok || v {
		t.Fatalf("expected not(true) = false")
	}
	if !Not{FieldRef{"missing"}}.Eval(Row{}).IsNull() {
		t.Fatalf("expected not(null) = null")
	}
}

func TestCallLowerUpper(t *testing.T) {
	row := Row{"s": wfvalue.String("MiXeD")}
	lower := Call{Name: "lower", Args: []Expr{FieldRef{"s"}}}.Eval(row)
	if s, ok := lower.String(); !ok || s != "mixed" {
		t.Fatalf("expected lower() to fold case, got %v", lower)
	}
	upper := Call{Name: "upper", Args: []Expr{FieldRef{"s"}}}.Eval(row)
	if s, ok := upper.String(); !ok || s != "MIXED" {
		t.Fatalf("expected upper() to fold case, got %v", upper)
	}
}

func TestCallLenCountsScalarsNotBytes(t *testing.T) {
	row := Row{"s": wfvalue.String("héllo")}
	got := Call{Name: "len", Args: []Expr{FieldRef{"s"}}}.Eval(row)
	n, ok := got.Number()
	if !ok || n != 5 {
		t.Fatalf("expected rune-count len of 5, got %v", got)
	}
}

func TestCallContains(t *testing.T) {
	row := Row{"s": wfvalue.String("hello world")}
	expr := Call{Name: "contains", Args: []Expr{FieldRef{"s"}, Literal{wfvalue.String("world")}}}
	got, ok := expr.Eval(row).Bool()
	if !ok || !got {
		t.Fatalf("expected contains to find substring")
	}
}

func TestCallOnNullArgIsNull(t *testing.T) {
	got := Call{Name: "lower", Args: []Expr{FieldRef{"missing"}}}.Eval(Row{})
	if !got.IsNull() {
		t.Fatalf("expected lower(null) = null")
	}
}
