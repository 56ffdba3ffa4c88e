// metrics.go — package-level prometheus collectors for the system's
// observable failure modes: decode failures, rule execution errors, and
// join/dispatch timeouts, plus a fourth for sink write failures (the
// error-group fallback). Grounded on cdc-sink-redshift's
// internal/staging/stage/metrics.go package-level promauto.NewCounterVec
// convention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpfusion_decode_failures_total",
		Help: "frames that failed IPC decode or schema materialisation and were skipped",
	}, []string{})

	ruleExecutionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpfusion_rule_execution_errors_total",
		Help: "expression evaluation errors during rule execution, suppressed per-event",
	}, []string{"rule_name"})

	joinTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpfusion_join_timeouts_total",
		Help: "per-batch rule execution joins that exceeded rule_exec_timeout and were skipped",
	}, []string{"rule_name"})

	sinkWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warpfusion_sink_write_failures_total",
		Help: "alert writes that failed at a business-group sink",
	}, []string{"group"})
)

// Recorder is the concrete, process-wide metrics sink. Its zero value is
// ready to use — every method updates the package-level collectors above.
type Recorder struct{}

// NewRecorder returns a Recorder bound to the package-level collectors.
func NewRecorder() Recorder { return Recorder{} }

// IncDecodeFailure implements internal/ingest.FailureCounter.
func (Recorder) IncDecodeFailure() {
	decodeFailures.WithLabelValues().Inc()
}

// IncRuleExecutionError implements internal/ruleexec.ErrorCounter.
func (Recorder) IncRuleExecutionError(ruleName string) {
	ruleExecutionErrors.WithLabelValues(ruleName).Inc()
}

// IncJoinTimeout implements internal/ruletask's timeout-counter seam.
func (Recorder) IncJoinTimeout(ruleName string) {
	joinTimeouts.WithLabelValues(ruleName).Inc()
}

// IncSinkWriteFailure implements internal/alert's sink-failure-counter seam.
func (Recorder) IncSinkWriteFailure(group string) {
	sinkWriteFailures.WithLabelValues(group).Inc()
}
