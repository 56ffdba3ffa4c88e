// logic.go — three-valued boolean logic: missing or incompatible operands
// must not raise, they must propagate as null unless short-circuited by a
// determining operand.
package wfvalue

// And implements Kleene/SQL-style three-valued conjunction:
// false ∧ anything = false; null ∧ null = null; true ∧ true = true.
func And(a, b Value) Value {
	af, aok := a.Bool()
	bf, bok := b.Bool()
	switch {
	case aok && !af:
		return Bool(false)
	case bok && !bf:
		return Bool(false)
	case aok && bok:
		return Bool(af && bf)
	default:
		return Null
	}
}

// Or implements three-valued disjunction: true ∨ anything = true;
// null ∨ null = null; false ∨ false = false.
func Or(a, b Value) Value {
	af, aok := a.Bool()
	bf, bok := b.Bool()
	switch {
	case aok && af:
		return Bool(true)
	case bok && bf:
		return Bool(true)
	case aok && bok:
		return Bool(af || bf)
	default:
		return Null
	}
}

// Not negates a boolean; Not(null) = null.
func Not(a Value) Value {
	af, ok := a.Bool()
	if !ok {
		return Null
	}
	return Bool(!af)
}

// Truthy reports whether a value should be treated as "true" for guard
// evaluation: only an explicit Bool(true) is truthy. Null, numbers, and
// strings are never truthy on their own — a guard that evaluates to a
// non-boolean is treated by its caller as not satisfied, and the event is
// skipped.
func Truthy(v Value) bool {
	b, ok := v.Bool()
	return ok && b
}
