// branchstate.go — BranchState: the running aggregate behind one OR
// branch's pipe. Null field values are skipped rather than poisoning the
// aggregate.
package cep

import "github.com/warpfusion/warpfusion/internal/wfvalue"

// BranchState accumulates one branch's observations across events.
type BranchState struct {
	distinct    bool
	distinctSet map[string]wfvalue.Value

	rawCount int64
	numCount int64 // numeric observations folded into sum
	sum      float64
	min, max wfvalue.Value
	haveMin  bool
}

// NewBranchState constructs a fresh accumulator for a branch whose pipe
// applies the distinct transform or not.
func NewBranchState(distinct bool) *BranchState {
	bs := &BranchState{distinct: distinct}
	if distinct {
		bs.distinctSet = make(map[string]wfvalue.Value)
	}
	return bs
}

// Observe folds one event's field value (wfvalue.Null when the branch has
// no column selector — plain count measures never look at it) into the
// running aggregate.
func (b *BranchState) Observe(v wfvalue.Value) {
	b.rawCount++
	if v.IsNull() {
		return
	}
	if b.distinct {
		b.distinctSet[v.Canonical()] = v
		return
	}
	if n, ok := v.Number(); ok {
		b.sum += n
		b.numCount++
	}
	if !b.haveMin {
		b.min, b.max, b.haveMin = v, v, true
		return
	}
	if cmp, ok := v.Compare(b.min); ok && cmp < 0 {
		b.min = v
	}
	if cmp, ok := v.Compare(b.max); ok && cmp > 0 {
		b.max = v
	}
}

// Value evaluates the branch's measure over everything observed so far.
func (b *BranchState) Value(m Measure) wfvalue.Value {
	if b.distinct {
		return b.distinctValue(m)
	}
	switch m {
	case MeasureCount:
		return wfvalue.Number(float64(b.rawCount))
	case MeasureSum:
		return wfvalue.Number(b.sum)
	case MeasureAvg:
		if b.numCount == 0 {
			return wfvalue.Number(0)
		}
		return wfvalue.Number(b.sum / float64(b.numCount))
	case MeasureMin:
		if !b.haveMin {
			return wfvalue.Null
		}
		return b.min
	case MeasureMax:
		if !b.haveMin {
			return wfvalue.Null
		}
		return b.max
	default:
		return wfvalue.Null
	}
}

// distinctValue computes the measure over the deduplicated set: count
// sees set cardinality, sum/avg/min/max operate over the deduplicated
// values.
func (b *BranchState) distinctValue(m Measure) wfvalue.Value {
	if m == MeasureCount {
		return wfvalue.Number(float64(len(b.distinctSet)))
	}

	var sum float64
	var min, max wfvalue.Value
	haveExtreme := false
	for _, v := range b.distinctSet {
		if n, ok := v.Number(); ok {
			sum += n
		}
		if !haveExtreme {
			min, max, haveExtreme = v, v, true
			continue
		}
		if cmp, ok := v.Compare(min); ok && cmp < 0 {
			min = v
		}
		if cmp, ok := v.Compare(max); ok && cmp > 0 {
			max = v
		}
	}

	switch m {
	case MeasureSum:
		return wfvalue.Number(sum)
	case MeasureAvg:
		if len(b.distinctSet) == 0 {
			return wfvalue.Number(0)
		}
		return wfvalue.Number(sum / float64(len(b.distinctSet)))
	case MeasureMin:
		if !haveExtreme {
			return wfvalue.Null
		}
		return min
	case MeasureMax:
		if !haveExtreme {
			return wfvalue.Null
		}
		return max
	default:
		return wfvalue.Null
	}
}

// SatisfiesThreshold reports whether the branch's pipe's comparison
// against its configured threshold currently holds.
func (b *BranchState) SatisfiesThreshold(p Pipe) bool {
	v := b.Value(p.Measure)
	n, ok := v.Number()
	if !ok {
		return false
	}
	switch p.CompareOp {
	case "", ">=":
		return n >= p.Threshold
	case ">":
		return n > p.Threshold
	case "==":
		return n == p.Threshold
	case "!=":
		return n != p.Threshold
	case "<":
		return n < p.Threshold
	case "<=":
		return n <= p.Threshold
	default:
		return false
	}
}

// StepData snapshots the branch that satisfied a step, for downstream
// score/entity expression evaluation and for CloseOutput reporting.
type StepData struct {
	StepIndex   int
	BranchLabel string
	Source      string
	Value       wfvalue.Value
}
