// value.go — the Value type shared by events, scope keys, and expression
// evaluation: a small tagged union over the three WFL scalar kinds plus a
// null marker for missing/incompatible results.
package wfvalue

import (
	"fmt"
	"math"
	"strings"
)

// Kind discriminates the tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
)

// Value is an immutable scalar: a 64-bit float, a string, a boolean, or
// null. Values of the same Kind are compared by payload — comparisons
// across incompatible kinds always yield null (see Compare).
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

var Null = Value{kind: KindNull}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}
func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Equal reports structural equality; null is only equal to null.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	}
	return false
}

// Compare orders two values of the same kind: -1, 0, 1. The second return
// value is false when the values are of different kinds (or either is
// null) — comparisons across incompatible types yield null. Booleans are
// not orderable and always report ok=false.
func (v Value) Compare(o Value) (result int, ok bool) {
	if v.kind != o.kind || v.kind == KindNull || v.kind == KindBool {
		return 0, false
	}
	switch v.kind {
	case KindNumber:
		switch {
		case v.num < o.num:
			return -1, true
		case v.num > o.num:
			return 1, true
		default:
			return 0, true
		}
	case KindString:
		return strings.Compare(v.str, o.str), true
	}
	return 0, false
}

// Canonical renders a deterministic, collision-resistant text form used for
// distinct-set membership and diagnostic output. It is NOT the scope-key
// wire encoding (see EncodeKey) because it doesn't length-prefix and so two
// distinct tuples of canonical strings can collide when concatenated.
func (v Value) Canonical() string {
	switch v.kind {
	case KindNull:
		return "\x00null"
	case KindNumber:
		if math.IsNaN(v.num) {
			return "\x01nan"
		}
		return "\x01" + strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.17f", v.num), "0"), ".")
	case KindString:
		return "\x02" + v.str
	case KindBool:
		if v.b {
			return "\x03true"
		}
		return "\x03false"
	}
	return "\x00null"
}

func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "Null"
	case KindNumber:
		return fmt.Sprintf("Number(%v)", v.num)
	case KindString:
		return fmt.Sprintf("String(%q)", v.str)
	case KindBool:
		return fmt.Sprintf("Bool(%v)", v.b)
	}
	return "?"
}
