package indicator

// Operators accepted by the condition evaluator.
const (
	OperatorGreater        = ">"
	OperatorGreaterOrEqual = ">="
	OperatorLess           = "<"
	OperatorLessOrEqual    = "<="
	OperatorEqual          = "=="
	OperatorBetween        = "between"
)

// Value is a resolved condition threshold. A threshold that could not be
// resolved to numbers stays raw and never satisfies a comparison.
type Value struct {
	numbers  []float64
	raw      string
	resolved bool
}

// Number wraps a single numeric threshold.
func Number(v float64) Value {
	return Value{numbers: []float64{v}, resolved: true}
}

// Numbers wraps a multi-valued threshold.
func Numbers(vs []float64) Value {
	return Value{numbers: vs, resolved: len(vs) > 0}
}

// Raw wraps an unresolvable expression. Comparisons against it are false.
func Raw(s string) Value {
	return Value{raw: s}
}

// IsNumeric reports whether the threshold resolved to numbers.
func (v Value) IsNumeric() bool { return v.resolved }

// Numbers returns the resolved threshold values.
func (v Value) Numbers() []float64 { return v.numbers }

// Raw returns the unresolved expression text, "" for numeric values.
func (v Value) Raw() string { return v.raw }

// Condition compares a list of indicator instances against a threshold.
// With N instances the condition holds only if the operator holds for every
// instance (logical AND across the list).
type Condition struct {
	indicators []Indicator
	operator   string
	value      Value
}

// NewCondition builds an evaluator. Pure, no side effects.
func NewCondition(indicators []Indicator, operator string, value Value) *Condition {
	return &Condition{indicators: indicators, operator: operator, value: value}
}

// IsSatisfied reports whether the condition holds. An empty instance list,
// an instance without a computed value, or a non-numeric threshold all
// evaluate to false rather than guessing a side.
func (c *Condition) IsSatisfied() bool {
	if len(c.indicators) == 0 || !c.value.IsNumeric() {
		return false
	}

	for _, instance := range c.indicators {
		values := instance.Value()
		if len(values) == 0 {
			return false
		}

		if !c.holds(values[0]) {
			return false
		}
	}

	return true
}

func (c *Condition) holds(value float64) bool {
	thresholds := c.value.Numbers()

	if c.operator == OperatorBetween {
		if len(thresholds) < 2 {
			return false
		}

		low, high := thresholds[0], thresholds[1]
		if low > high {
			low, high = high, low
		}

		return value >= low && value <= high
	}

	for _, threshold := range thresholds {
		if !compare(value, c.operator, threshold) {
			return false
		}
	}

	return true
}

func compare(a float64, operator string, b float64) bool {
	switch operator {
	case OperatorGreater:
		return a > b
	case OperatorGreaterOrEqual:
		return a >= b
	case OperatorLess:
		return a < b
	case OperatorLessOrEqual:
		return a <= b
	case OperatorEqual:
		return a == b
	default:
		return false
	}
}
