// result.go — the outputs a StateMachine reports back to the rule task:
// AdvanceResult from on-event processing, CloseOutput from the close path.
package cep

// AdvanceKind discriminates what Advance accomplished for one event.
type AdvanceKind uint8

const (
	// Accumulate: the event was consumed (or skipped by a filter/guard/
	// null key) but no step advanced.
	Accumulate AdvanceKind = iota
	// Advance: a step was satisfied but more steps remain, or the last
	// on-event step completed and the rule has close_steps, so the match
	// is decided at close.
	Advance
	// Matched: all on-event steps are complete and the rule has no
	// close_steps, so this is an immediate match.
	Matched
)

// MatchedContext carries everything the rule executor needs to evaluate
// the rule's score/entity expressions for an immediate match.
type MatchedContext struct {
	RuleName       string
	ScopeKey       string
	EventTimeNS    int64
	CompletedSteps []StepData
}

// CloseReason names why an instance closed.
type CloseReason string

const (
	ReasonTimeout CloseReason = "timeout"
	ReasonFlush   CloseReason = "flush"
	ReasonEos     CloseReason = "eos"
)

// CloseOutput is produced whenever an instance closes, by any of close,
// scan_expired, or close_all.
type CloseOutput struct {
	RuleName       string
	ScopeKey       string
	Reason         CloseReason
	EventOK        bool
	CloseOK        bool
	CompletedSteps []StepData
	CloseStepData  []StepData
}

// AdvanceResult is what Advance returns for one incoming event.
type AdvanceResult struct {
	Kind    AdvanceKind
	Matched *MatchedContext
}
