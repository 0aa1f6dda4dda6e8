package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Percentage reports how many percent b is of a. Returns 0 when a is 0.
func Percentage(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return (b / a) * 100
}

// CalculeProfit applies a signed percentage to a price. A negative percent
// walks the price down.
func CalculeProfit(price, percent float64) float64 {
	result := decimal.NewFromFloat(price).
		Add(decimal.NewFromFloat(price).
			Mul(decimal.NewFromFloat(percent)).
			Div(decimal.NewFromInt(100)))

	out, _ := result.Float64()
	return out
}

// FormatDecimal rounds value to the number of decimal places carried by the
// reference. A reference of 0.001 yields three decimals, 1 yields none.
func FormatDecimal(reference, value float64) float64 {
	places := -decimal.NewFromFloat(reference).Exponent()
	if places < 0 {
		places = 0
	}

	out, _ := decimal.NewFromFloat(value).Round(places).Float64()
	return out
}

// RoundStep floors value to the nearest multiple of step. Exchanges reject
// quantities that are not aligned to the lot step.
func RoundStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}

	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)

	out, _ := v.Div(s).Floor().Mul(s).Float64()
	return out
}

// IsTimeBoxOrder reports whether an order created at the given millisecond
// timestamp is older than the window.
func IsTimeBoxOrder(timestampMs int64, window time.Duration) bool {
	if timestampMs <= 0 {
		return false
	}
	return time.Since(time.UnixMilli(timestampMs)) >= window
}

// TimePosition returns how long a position has been open.
func TimePosition(openedAt time.Time) time.Duration {
	if openedAt.IsZero() {
		return 0
	}
	return time.Since(openedAt)
}
