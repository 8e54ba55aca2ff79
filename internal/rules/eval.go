// Package rules implements the threshold rule engine (§4.E): a predicate
// evaluator plus the per-datapoint trigger flow (fetch enabled rules,
// evaluate, apply cooldown, fire the configured action).
package rules

import (
	"math"

	"github.com/stefanposs/webmacs/internal/model"
)

// equalEpsilon is the tolerance used by the eq operator, since floating
// point readings are never exactly equal in practice.
const equalEpsilon = 1e-9

// Eval reports whether value satisfies operator against threshold (and
// thresholdHigh for the two-sided operators). Unknown operators never
// match; the boundary schema validator is responsible for rejecting them
// before a Rule reaches this package.
func Eval(value float64, operator model.RuleOperator, threshold float64, thresholdHigh *float64) bool {
	switch operator {
	case model.OpGreaterThan:
		return value > threshold
	case model.OpLessThan:
		return value < threshold
	case model.OpEqual:
		return math.Abs(value-threshold) < equalEpsilon
	case model.OpGreaterOrEqual:
		return value >= threshold
	case model.OpLessOrEqual:
		return value <= threshold
	case model.OpBetween:
		return thresholdHigh != nil && value >= threshold && value <= *thresholdHigh
	case model.OpNotBetween:
		return thresholdHigh != nil && (value < threshold || value > *thresholdHigh)
	default:
		return false
	}
}

// EvalRule is a convenience wrapper that reads threshold/thresholdHigh
// directly off a Rule.
func EvalRule(value float64, r model.Rule) bool {
	return Eval(value, r.Operator, r.Threshold, r.ThresholdHigh)
}
