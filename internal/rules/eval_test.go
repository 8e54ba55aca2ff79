package rules

import (
	"testing"

	"github.com/stefanposs/webmacs/internal/model"
)

func floatPtr(f float64) *float64 { return &f }

func TestEval(t *testing.T) {
	tests := []struct {
		name          string
		value         float64
		operator      model.RuleOperator
		threshold     float64
		thresholdHigh *float64
		want          bool
	}{
		{"gt true", 10, model.OpGreaterThan, 5, nil, true},
		{"gt false", 5, model.OpGreaterThan, 5, nil, false},
		{"lt true", 3, model.OpLessThan, 5, nil, true},
		{"lt false", 5, model.OpLessThan, 5, nil, false},
		{"eq exact", 5, model.OpEqual, 5, nil, true},
		{"eq within epsilon", 5.0000000001, model.OpEqual, 5, nil, true},
		{"eq outside epsilon", 5.01, model.OpEqual, 5, nil, false},
		{"gte at boundary", 5, model.OpGreaterOrEqual, 5, nil, true},
		{"lte at boundary", 5, model.OpLessOrEqual, 5, nil, true},
		{"between inside", 5, model.OpBetween, 1, floatPtr(10), true},
		{"between at low boundary", 1, model.OpBetween, 1, floatPtr(10), true},
		{"between at high boundary", 10, model.OpBetween, 1, floatPtr(10), true},
		{"between outside", 11, model.OpBetween, 1, floatPtr(10), false},
		{"between missing high", 5, model.OpBetween, 1, nil, false},
		{"not_between outside range", 11, model.OpNotBetween, 1, floatPtr(10), true},
		{"not_between inside range", 5, model.OpNotBetween, 1, floatPtr(10), false},
		{"not_between missing high", 5, model.OpNotBetween, 1, nil, false},
		{"unknown operator never matches", 5, model.RuleOperator("bogus"), 5, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eval(tt.value, tt.operator, tt.threshold, tt.thresholdHigh); got != tt.want {
				t.Errorf("Eval(%v, %v, %v, %v) = %v, want %v",
					tt.value, tt.operator, tt.threshold, tt.thresholdHigh, got, tt.want)
			}
		})
	}
}

func TestEvalRule(t *testing.T) {
	r := model.Rule{
		Operator:  model.OpGreaterThan,
		Threshold: 42,
	}
	if EvalRule(43, r) != true {
		t.Error("expected 43 > 42 to match")
	}
	if EvalRule(42, r) != false {
		t.Error("expected 42 > 42 to not match")
	}
}
