package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	assert.InDelta(t, 50.0, Percentage(200, 100), 0.0001)
	assert.InDelta(t, 100.0, Percentage(100, 100), 0.0001)
	assert.Zero(t, Percentage(0, 100))
}

func TestCalculeProfit(t *testing.T) {
	assert.InDelta(t, 110.0, CalculeProfit(100, 10), 0.0001)
	assert.InDelta(t, 90.0, CalculeProfit(100, -10), 0.0001)
	assert.InDelta(t, 100.0, CalculeProfit(100, 0), 0.0001)
	assert.InDelta(t, 25075.0, CalculeProfit(25000, 0.3), 0.0001)
}

func TestFormatDecimal(t *testing.T) {
	assert.Equal(t, 0.123, FormatDecimal(0.001, 0.12345))
	assert.Equal(t, 25000.5, FormatDecimal(0.1, 25000.4999+0.01))
	assert.Equal(t, 3.0, FormatDecimal(1, 3.4))
	assert.Equal(t, 0.13, FormatDecimal(0.01, 0.125))
}

func TestRoundStep(t *testing.T) {
	assert.Equal(t, 0.123, RoundStep(0.1239, 0.001))
	assert.Equal(t, 0.0, RoundStep(0.0009, 0.001))
	assert.Equal(t, 5.0, RoundStep(5.7, 1))
	assert.Equal(t, 1.5, RoundStep(1.5, 0))
}

func TestIsTimeBoxOrder(t *testing.T) {
	old := time.Now().Add(-2 * time.Minute).UnixMilli()
	fresh := time.Now().UnixMilli()

	assert.True(t, IsTimeBoxOrder(old, time.Minute))
	assert.False(t, IsTimeBoxOrder(fresh, time.Minute))
	assert.False(t, IsTimeBoxOrder(0, time.Minute))
}

func TestTimePosition(t *testing.T) {
	opened := time.Now().Add(-3 * time.Hour)

	age := TimePosition(opened)
	assert.GreaterOrEqual(t, age, 3*time.Hour)
	assert.Less(t, age, 3*time.Hour+time.Minute)

	assert.Zero(t, TimePosition(time.Time{}))
}
