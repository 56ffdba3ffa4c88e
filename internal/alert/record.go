// record.go — AlertRecord: the rule executor's output and the alert
// dispatcher's input. ID construction follows the literal format
// `"{rule_name}|{scope_key_encoded}|{fired_at_nanos}#{seq}"`; the
// underlying idea — a deterministic join of rule/source/time — is
// grounded on the teacher-adjacent ObsidianStack alerts engine's
// `fmt.Sprintf("%s:%s:%d", rule, source, now.UnixNano())`, generalized
// here with an explicit seq disambiguator so two alerts sharing
// (rule_name, scope_key, fired_at) never collide.
package alert

import "fmt"

// Record is one emitted alert.
type Record struct {
	ID          string  `json:"id"`
	RuleName    string  `json:"rule_name"`
	ScopeKey    string  `json:"scope_key"`
	CloseReason string  `json:"close_reason,omitempty"` // empty when this alert came from an immediate Matched, not a close
	YieldTarget string  `json:"yield_target"`
	Score       float64 `json:"score"`
	Entity      string  `json:"entity,omitempty"`
	FiredAtNS   int64   `json:"fired_at_ns"`
	Seq         uint64  `json:"seq"`
}

// NewID builds the deterministic alert id: distinct alerts sharing
// (rule_name, scope_key, fired_at) are disambiguated only by the appended
// seq.
func NewID(ruleName, scopeKey string, firedAtNS int64, seq uint64) string {
	return fmt.Sprintf("%s|%s|%d#%d", ruleName, scopeKey, firedAtNS, seq)
}
