package config

import "testing"

func TestSubstituteDollarBraceWithKnownVar(t *testing.T) {
	got, err := substitute("threshold = ${THRESHOLD}", map[string]string{"THRESHOLD": "5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "threshold = 5" {
		t.Fatalf("got %q", got)
	}
}

func TestSubstituteBareDollarWithKnownVar(t *testing.T) {
	got, err := substitute("threshold = $THRESHOLD end", map[string]string{"THRESHOLD": "5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "threshold = 5 end" {
		t.Fatalf("got %q", got)
	}
}

func TestSubstituteUsesDefaultWhenVarMissing(t *testing.T) {
	got, err := substitute("threshold = ${THRESHOLD:10}", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "threshold = 10" {
		t.Fatalf("got %q", got)
	}
}

func TestSubstitutePrefersVarOverDefault(t *testing.T) {
	got, err := substitute("threshold = ${THRESHOLD:10}", map[string]string{"THRESHOLD": "99"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "threshold = 99" {
		t.Fatalf("got %q", got)
	}
}

func TestSubstituteErrorsOnUnresolvedVarWithNoDefault(t *testing.T) {
	if _, err := substitute("threshold = $MISSING", map[string]string{}); err == nil {
		t.Fatalf("expected an error for an unresolved variable with no default")
	}
}

func TestSubstituteErrorsOnUnterminatedBrace(t *testing.T) {
	if _, err := substitute("threshold = ${THRESHOLD", map[string]string{"THRESHOLD": "5"}); err == nil {
		t.Fatalf("expected an error for an unterminated ${...} reference")
	}
}

func TestSubstituteLoneDollarPassesThrough(t *testing.T) {
	got, err := substitute("price: $5.00", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "price: $5.00" {
		t.Fatalf("got %q", got)
	}
}
