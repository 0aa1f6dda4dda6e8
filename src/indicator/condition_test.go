package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndicator struct {
	base
}

func newStub(values ...float64) *stubIndicator {
	return &stubIndicator{base{kind: "stub", values: values}}
}

func TestConditionSingleInstance(t *testing.T) {
	cases := []struct {
		name     string
		value    float64
		operator string
		want     bool
	}{
		{"greater true", 10, OperatorGreater, true},
		{"greater false", 4, OperatorGreater, false},
		{"greater equal boundary", 5, OperatorGreaterOrEqual, true},
		{"less true", 4, OperatorLess, true},
		{"less equal boundary", 5, OperatorLessOrEqual, true},
		{"equal true", 5, OperatorEqual, true},
		{"equal false", 5.0001, OperatorEqual, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			condition := NewCondition([]Indicator{newStub(tc.value)}, tc.operator, Number(5))
			assert.Equal(t, tc.want, condition.IsSatisfied())
		})
	}
}

func TestConditionRequiresEveryInstance(t *testing.T) {
	// Price above all of SMA 7/25/99: every instance must satisfy.
	instances := []Indicator{newStub(100), newStub(102), newStub(105)}

	assert.True(t, NewCondition(instances, OperatorLess, Number(110)).IsSatisfied())

	mixed := []Indicator{newStub(100), newStub(115)}
	assert.False(t, NewCondition(mixed, OperatorLess, Number(110)).IsSatisfied())
}

func TestConditionEmptyListIsFalse(t *testing.T) {
	assert.False(t, NewCondition(nil, OperatorGreater, Number(1)).IsSatisfied())
	assert.False(t, NewCondition([]Indicator{}, OperatorGreater, Number(1)).IsSatisfied())
}

func TestConditionUnresolvedThresholdIsFalse(t *testing.T) {
	instances := []Indicator{newStub(100)}

	condition := NewCondition(instances, OperatorGreater, Raw("@INDICATOR_bogus_9_9"))
	assert.False(t, condition.IsSatisfied())
}

func TestConditionInstanceWithoutValueIsFalse(t *testing.T) {
	instances := []Indicator{newStub()}

	condition := NewCondition(instances, OperatorGreater, Number(1))
	assert.False(t, condition.IsSatisfied())
}

func TestConditionBetween(t *testing.T) {
	instances := []Indicator{newStub(50)}

	assert.True(t, NewCondition(instances, OperatorBetween, Numbers([]float64{40, 60})).IsSatisfied())
	assert.True(t, NewCondition(instances, OperatorBetween, Numbers([]float64{60, 40})).IsSatisfied())
	assert.False(t, NewCondition(instances, OperatorBetween, Numbers([]float64{60, 80})).IsSatisfied())
	assert.False(t, NewCondition(instances, OperatorBetween, Number(40)).IsSatisfied())
}

func TestConditionMultiThresholdScalarOperator(t *testing.T) {
	instances := []Indicator{newStub(100)}

	// Threshold list with a scalar operator means the value must hold
	// against every threshold.
	assert.True(t, NewCondition(instances, OperatorGreater, Numbers([]float64{90, 95})).IsSatisfied())
	assert.False(t, NewCondition(instances, OperatorGreater, Numbers([]float64{90, 105})).IsSatisfied())
}

func TestConditionUnknownOperatorIsFalse(t *testing.T) {
	condition := NewCondition([]Indicator{newStub(1)}, "~", Number(1))
	require.False(t, condition.IsSatisfied())
}
