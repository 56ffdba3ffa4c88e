// key.go — scope-key tuple encoding. The encoded form is the CEP instance
// id: it must never collide for distinct tuples and must be cheap to
// compute on every event.
package wfvalue

import (
	"encoding/binary"
	"strings"
)

// EncodeKey concatenates the length-prefixed canonical form of each value
// in order. Length-prefixing (rather than a plain separator) is what makes
// two different tuples provably non-colliding: a separator byte could
// itself appear inside a string payload, but a byte count cannot be
// ambiguously reinterpreted as payload.
func EncodeKey(values []Value) string {
	var b strings.Builder
	var lenBuf [4]byte
	for _, v := range values {
		c := v.Canonical()
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(c)))
		b.Write(lenBuf[:])
		b.WriteString(c)
	}
	return b.String()
}
