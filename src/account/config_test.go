package account

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjr-software/flinkbot-bot/src/indicator"
)

func TestNewBotConfigDefaults(t *testing.T) {
	config, err := NewBotConfig("")
	require.NoError(t, err)

	assert.Equal(t, "both", config.OperationSide)
	assert.Equal(t, "short", config.PrioritySideIndicator)
	assert.Equal(t, "15m", config.Interval)
	assert.Equal(t, 60, config.OrderCommonTimeout)
	assert.Equal(t, 60, config.OrderTriggerTimeout)
	assert.Equal(t, 3600, config.OrderLongTriggerTimeout)
	assert.Equal(t, 1, config.MultiplierIncrementTrigger)
	assert.False(t, config.EnableHalfPriceProtection)
}

func TestNewBotConfigMalformed(t *testing.T) {
	_, err := NewBotConfig("{not json")
	assert.Error(t, err)
}

func TestNewBotConfigParsesFullBlob(t *testing.T) {
	raw := `{
		"operationSide": "long",
		"prioritySideIndicator": "StochasticRSI",
		"interval": "5m",
		"orderCommonTimeout": 120,
		"incrementTriggerPercentage": 0.2,
		"averagePriceOrderCount": 3,
		"tradeCurrentCycle": true,
		"margin": {"account": 95, "symbol": 8},
		"position": {
			"profit": 50, "loss": 30,
			"minimumGain": 0.5, "minimumLoss": 0.5,
			"gainValue": 20, "lossValue": 15,
			"accountGain": 5, "maxTime": 86400,
			"filledTime": 300, "partialPercentage": 50
		},
		"indicator": {
			"indicators": {"MovingAverageSMA": [[7],[25]]},
			"conditions": {
				"when": "any",
				"long": {"MovingAverageSMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": "<"}}]},
				"short": {"MovingAverageSMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": ">"}}]}
			}
		}
	}`

	config, err := NewBotConfig(raw)
	require.NoError(t, err)

	assert.Equal(t, "long", config.OperationSide)
	assert.Equal(t, 120, config.OrderCommonTimeout)
	assert.Equal(t, 60, config.OrderTriggerTimeout)
	assert.Equal(t, 95.0, config.Margin.Account)
	assert.Equal(t, 8.0, config.Margin.Symbol)
	assert.Equal(t, 50.0, config.Position.Profit)
	assert.Equal(t, 86400, config.Position.MaxTime)
	assert.Equal(t, 50.0, config.Position.PartialPercentage)
	assert.True(t, config.TradeCurrentCycle)
	assert.Equal(t, WhenAny, config.Indicator.When)
	require.Len(t, config.Indicator.Long["MovingAverageSMA"], 1)
	assert.Equal(t, "<", config.Indicator.Long["MovingAverageSMA"][0].Operator)
}

func smaConfig(when string, clauses string) string {
	return fmt.Sprintf(`{
		"indicator": {
			"indicators": {"MovingAverageSMA": [[5]], "MovingAverageEMA": [[5]]},
			"conditions": {"when": %q, %s}
		}
	}`, when, clauses)
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	return closes
}

func TestGetIndicatorAggregationAny(t *testing.T) {
	// Rising series: last SMA(5)/EMA(5) both sit below the current price.
	closes := risingCloses(50)
	current := 100.0

	config, err := NewBotConfig(smaConfig(WhenAny, `
		"long": {
			"MovingAverageSMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": "<"}}],
			"MovingAverageEMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": ">"}}]
		}`))
	require.NoError(t, err)

	signals, err := config.GetIndicator(closes, current)
	require.NoError(t, err)

	// SMA below price satisfies "<", EMA fails ">": any -> enabled.
	assert.True(t, signals.Long["MovingAverageSMA"])
	assert.False(t, signals.Long["MovingAverageEMA"])
	assert.True(t, signals.LongOK)
	assert.False(t, signals.ShortOK)
}

func TestGetIndicatorAggregationOnly(t *testing.T) {
	closes := risingCloses(50)
	current := 100.0

	// Exactly one satisfied indicator -> enabled under "only".
	config, err := NewBotConfig(smaConfig(WhenOnly, `
		"long": {
			"MovingAverageSMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": "<"}}],
			"MovingAverageEMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": ">"}}]
		}`))
	require.NoError(t, err)

	signals, err := config.GetIndicator(closes, current)
	require.NoError(t, err)
	assert.True(t, signals.LongOK)

	// Both satisfied -> exclusivity broken.
	config, err = NewBotConfig(smaConfig(WhenOnly, `
		"long": {
			"MovingAverageSMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": "<"}}],
			"MovingAverageEMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": "<"}}]
		}`))
	require.NoError(t, err)

	signals, err = config.GetIndicator(closes, current)
	require.NoError(t, err)
	assert.False(t, signals.LongOK)
}

func TestGetIndicatorAggregationAll(t *testing.T) {
	closes := risingCloses(50)
	current := 100.0

	config, err := NewBotConfig(smaConfig(WhenAll, `
		"long": {
			"MovingAverageSMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": "<"}}],
			"MovingAverageEMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": "<"}}]
		}`))
	require.NoError(t, err)

	signals, err := config.GetIndicator(closes, current)
	require.NoError(t, err)
	assert.True(t, signals.LongOK)

	config, err = NewBotConfig(smaConfig(WhenAll, `
		"long": {
			"MovingAverageSMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": "<"}}],
			"MovingAverageEMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": ">"}}]
		}`))
	require.NoError(t, err)

	signals, err = config.GetIndicator(closes, current)
	require.NoError(t, err)
	assert.False(t, signals.LongOK)
}

func TestGetIndicatorZeroIndicatorsDisablesBothSides(t *testing.T) {
	for _, when := range []string{WhenAny, WhenOnly, WhenAll} {
		config, err := NewBotConfig(fmt.Sprintf(`{
			"indicator": {"indicators": {}, "conditions": {"when": %q}}
		}`, when))
		require.NoError(t, err)

		signals, err := config.GetIndicator(risingCloses(50), 100)
		require.NoError(t, err)
		assert.False(t, signals.LongOK, when)
		assert.False(t, signals.ShortOK, when)
	}
}

func TestGetIndicatorUnresolvedExpressionNotSatisfied(t *testing.T) {
	config, err := NewBotConfig(smaConfig(WhenAll, `
		"long": {
			"MovingAverageSMA": [{"condition": {"value": "@INDICATOR_Missing_0_0", "operator": ">"}}],
			"MovingAverageEMA": [{"condition": {"value": "@SYMBOL_PRICE", "operator": "<"}}]
		}`))
	require.NoError(t, err)

	signals, err := config.GetIndicator(risingCloses(50), 100)
	require.NoError(t, err)

	assert.False(t, signals.Long["MovingAverageSMA"])
	assert.False(t, signals.LongOK)
}

func TestGetIndicatorCrossIndicatorReference(t *testing.T) {
	config, err := NewBotConfig(smaConfig(WhenAny, `
		"long": {
			"MovingAverageEMA": [{"condition": {"value": "@INDICATOR_MovingAverageSMA_0_0", "operator": ">="}}]
		}`))
	require.NoError(t, err)

	// Rising series: EMA(5) leans toward recent values, so it sits at or
	// above SMA(5).
	signals, err := config.GetIndicator(risingCloses(50), 100)
	require.NoError(t, err)
	assert.True(t, signals.Long["MovingAverageEMA"])
	assert.True(t, signals.LongOK)
}

func TestGetIndicatorUnknownKindFails(t *testing.T) {
	config, err := NewBotConfig(`{
		"indicator": {"indicators": {"Ichimoku": [[9]]}, "conditions": {"when": "all"}}
	}`)
	require.NoError(t, err)

	_, err = config.GetIndicator(risingCloses(50), 100)
	assert.Error(t, err)
}

func TestParseValueExpressionsList(t *testing.T) {
	config, err := NewBotConfig(`{
		"indicator": {
			"indicators": {"StochasticRSI": [[14, 3, 3]]},
			"conditions": {
				"when": "all",
				"long": {"StochasticRSI": [{"condition": {"value": [20, 80], "operator": "between"}}]}
			}
		}
	}`)
	require.NoError(t, err)

	clause := config.Indicator.Long["StochasticRSI"][0]
	require.Len(t, clause.Expressions, 2)

	value := resolveClause(clause, 0, map[string][]indicator.Indicator{})
	require.True(t, value.IsNumeric())
	assert.Equal(t, []float64{20, 80}, value.Numbers())
}
