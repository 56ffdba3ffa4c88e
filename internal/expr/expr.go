// expr.go — the WFL expression AST and its evaluator, covering the
// guard/key/measure/score/entity expressions rules are built from. Every
// example repo's own expression evaluator (bloblang, cockroach's cmn expr)
// is itself a bespoke in-repo AST walker of exactly this shape, so the
// walking-interpreter pattern below imitates the corpus's idiom even
// without a single file to copy line-for-line.
package expr

import (
	"strings"
	"unicode/utf8"

	"github.com/warpfusion/warpfusion/internal/wfvalue"
)

// Row is the evaluation environment: a flat field-name -> value map for
// one event (or, for close-step evaluation, one retained event's fields
// plus the close_reason pseudo-field).
type Row map[string]wfvalue.Value

// Expr is any node in the expression tree. Eval must never panic on
// missing fields or type mismatches — those resolve to wfvalue.Null per
// the package's three-valued logic.
type Expr interface {
	Eval(row Row) wfvalue.Value
}

// FieldRef resolves a field by name, including dotted names produced by
// quoted dotted-name selectors; dotted names are looked up verbatim as a
// single key, since the binding layer above is responsible for producing
// already-qualified row keys (alias.field).
type FieldRef struct {
	Name string
}

func (f FieldRef) Eval(row Row) wfvalue.Value {
	if v, ok := row[f.Name]; ok {
		return v
	}
	return wfvalue.Null
}

// Literal is a constant value.
type Literal struct {
	Value wfvalue.Value
}

func (l Literal) Eval(Row) wfvalue.Value { return l.Value }

// CloseReasonRef resolves the close_reason pseudo-field bound during
// close-step evaluation.
type CloseReasonRef struct{}

func (CloseReasonRef) Eval(row Row) wfvalue.Value {
	if v, ok := row["close_reason"]; ok {
		return v
	}
	return wfvalue.Null
}

// BinOp names a binary operator.
type BinOp string

const (
	OpAnd BinOp = "and"
	OpOr  BinOp = "or"
	OpEq  BinOp = "=="
	OpNeq BinOp = "!="
	OpLt  BinOp = "<"
	OpLte BinOp = "<="
	OpGt  BinOp = ">"
	OpGte BinOp = ">="
)

// Binary applies a BinOp to two sub-expressions.
type Binary struct {
	Op          BinOp
	Left, Right Expr
}

func (b Binary) Eval(row Row) wfvalue.Value {
	switch b.Op {
	case OpAnd:
		return wfvalue.And(b.Left.Eval(row), b.Right.Eval(row))
	case OpOr:
		return wfvalue.Or(b.Left.Eval(row), b.Right.Eval(row))
	}

	l := b.Left.Eval(row)
	r := b.Right.Eval(row)

	switch b.Op {
	case OpEq:
		if l.IsNull() || r.IsNull() {
			return wfvalue.Null
		}
		return wfvalue.Bool(l.Equal(r))
	case OpNeq:
		if l.IsNull() || r.IsNull() {
			return wfvalue.Null
		}
		return wfvalue.Bool(!l.Equal(r))
	case OpLt, OpLte, OpGt, OpGte:
		cmp, ok := l.Compare(r)
		if !ok {
			return wfvalue.Null
		}
		switch b.Op {
		case OpLt:
			return wfvalue.Bool(cmp < 0)
		case OpLte:
			return wfvalue.Bool(cmp <= 0)
		case OpGt:
			return wfvalue.Bool(cmp > 0)
		case OpGte:
			return wfvalue.Bool(cmp >= 0)
		}
	}
	return wfvalue.Null
}

// Not negates a boolean sub-expression under three-valued logic.
type Not struct {
	Operand Expr
}

func (n Not) Eval(row Row) wfvalue.Value {
	return wfvalue.Not(n.Operand.Eval(row))
}

// Call is one of the built-in functions: contains, lower, upper, len.
type Call struct {
	Name string
	Args []Expr
}

func (c Call) Eval(row Row) wfvalue.Value {
	args := make([]wfvalue.Value, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.Eval(row)
	}

	switch c.Name {
	case "lower":
		return stringUnary(args, strings.ToLower)
	case "upper":
		return stringUnary(args, strings.ToUpper)
	case "len":
		if len(args) != 1 || args[0].IsNull() {
			return wfvalue.Null
		}
		s, ok := args[0].String()
		if !ok {
			return wfvalue.Null
		}
		return wfvalue.Number(float64(utf8.RuneCountInString(s)))
	case "contains":
		if len(args) != 2 {
			return wfvalue.Null
		}
		haystack, ok1 := args[0].String()
		needle, ok2 := args[1].String()
		if !ok1 || !ok2 {
			return wfvalue.Null
		}
		return wfvalue.Bool(strings.Contains(haystack, needle))
	default:
		return wfvalue.Null
	}
}

func stringUnary(args []wfvalue.Value, f func(string) string) wfvalue.Value {
	if len(args) != 1 || args[0].IsNull() {
		return wfvalue.Null
	}
	s, ok := args[0].String()
	if !ok {
		return wfvalue.Null
	}
	return wfvalue.String(f(s))
}
