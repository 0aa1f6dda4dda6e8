package account

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fjr-software/flinkbot-bot/src/indicator"
)

// Aggregation policies for per-side indicator results.
const (
	WhenAny  = "any"
	WhenOnly = "only"
	WhenAll  = "all"
)

// MarginConfig caps margin usage, in percent.
type MarginConfig struct {
	Account float64 `json:"account"`
	Symbol  float64 `json:"symbol"`
}

// PositionConfig drives exit management. Profit/Loss are leveraged ROI
// percent thresholds, MinimumGain/MinimumLoss and GainValue/LossValue are
// absolute amounts, AccountGain is an account PnL percent trigger. MaxTime
// and FilledTime are in seconds.
type PositionConfig struct {
	Profit            float64 `json:"profit"`
	Loss              float64 `json:"loss"`
	MinimumGain       float64 `json:"minimumGain"`
	MinimumLoss       float64 `json:"minimumLoss"`
	GainValue         float64 `json:"gainValue"`
	LossValue         float64 `json:"lossValue"`
	AccountGain       float64 `json:"accountGain"`
	MaxTime           int     `json:"maxTime"`
	FilledTime        int     `json:"filledTime"`
	PartialPercentage float64 `json:"partialPercentage"`
}

// ConditionClause is one threshold comparison for an indicator, with the
// threshold expressions already parsed.
type ConditionClause struct {
	Operator    string
	Expressions []indicator.Expression
}

// IndicatorConfig is the parsed indicator section of a strategy blob.
type IndicatorConfig struct {
	// Indicators maps kind -> parameter sets. A nil set still builds one
	// instance with default parameters.
	Indicators map[string][][]float64
	When       string
	Long       map[string][]ConditionClause
	Short      map[string][]ConditionClause
}

// BotConfig is the strategy configuration stored on the bot row.
type BotConfig struct {
	InitialBalance             float64
	OperationSide              string
	PrioritySideIndicator      string
	Interval                   string
	OrderCommonTimeout         int
	OrderTriggerTimeout        int
	OrderLongTriggerTimeout    int
	EnableHalfPriceProtection  bool
	IncrementTriggerPercentage float64
	MultiplierIncrementTrigger int
	AveragePriceOrderCount     int
	TradeCurrentCycle          bool
	Margin                     MarginConfig
	Position                   PositionConfig
	Indicator                  IndicatorConfig
}

type rawClause struct {
	Condition struct {
		Value    json.RawMessage `json:"value"`
		Operator string          `json:"operator"`
	} `json:"condition"`
}

type rawConfig struct {
	InitialBalance             float64                      `json:"initialBalance"`
	OperationSide              string                       `json:"operationSide"`
	PrioritySideIndicator      string                       `json:"prioritySideIndicator"`
	Interval                   string                       `json:"interval"`
	OrderCommonTimeout         *int                         `json:"orderCommonTimeout"`
	OrderTriggerTimeout        *int                         `json:"orderTriggerTimeout"`
	OrderLongTriggerTimeout    *int                         `json:"orderLongTriggerTimeout"`
	EnableHalfPriceProtection  bool                         `json:"enableHalfPriceProtection"`
	IncrementTriggerPercentage float64                      `json:"incrementTriggerPercentage"`
	MultiplierIncrementTrigger *int                         `json:"multiplierIncrementTrigger"`
	AveragePriceOrderCount     int                          `json:"averagePriceOrderCount"`
	TradeCurrentCycle          bool                         `json:"tradeCurrentCycle"`
	Margin                     MarginConfig                 `json:"margin"`
	Position                   PositionConfig               `json:"position"`
	Indicator                  struct {
		Indicators map[string][][]float64 `json:"indicators"`
		Conditions struct {
			When  string                 `json:"when"`
			Long  map[string][]rawClause `json:"long"`
			Short map[string][]rawClause `json:"short"`
		} `json:"conditions"`
	} `json:"indicator"`
}

// NewBotConfig parses a strategy blob. An empty blob yields the defaults; a
// malformed one is a configuration error.
func NewBotConfig(raw string) (*BotConfig, error) {
	config := &BotConfig{
		OperationSide:              "both",
		PrioritySideIndicator:      "short",
		Interval:                   "15m",
		OrderCommonTimeout:         60,
		OrderTriggerTimeout:        60,
		OrderLongTriggerTimeout:    3600,
		MultiplierIncrementTrigger: 1,
		Indicator: IndicatorConfig{
			When:  WhenAll,
			Long:  map[string][]ConditionClause{},
			Short: map[string][]ConditionClause{},
		},
	}

	if strings.TrimSpace(raw) == "" {
		return config, nil
	}

	var parsed rawConfig
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("account: malformed strategy config: %w", err)
	}

	if parsed.OperationSide != "" {
		config.OperationSide = parsed.OperationSide
	}
	if parsed.PrioritySideIndicator != "" {
		config.PrioritySideIndicator = parsed.PrioritySideIndicator
	}
	if parsed.Interval != "" {
		config.Interval = parsed.Interval
	}
	if parsed.OrderCommonTimeout != nil {
		config.OrderCommonTimeout = *parsed.OrderCommonTimeout
	}
	if parsed.OrderTriggerTimeout != nil {
		config.OrderTriggerTimeout = *parsed.OrderTriggerTimeout
	}
	if parsed.OrderLongTriggerTimeout != nil {
		config.OrderLongTriggerTimeout = *parsed.OrderLongTriggerTimeout
	}
	if parsed.MultiplierIncrementTrigger != nil {
		config.MultiplierIncrementTrigger = *parsed.MultiplierIncrementTrigger
	}

	config.InitialBalance = parsed.InitialBalance
	config.EnableHalfPriceProtection = parsed.EnableHalfPriceProtection
	config.IncrementTriggerPercentage = parsed.IncrementTriggerPercentage
	config.AveragePriceOrderCount = parsed.AveragePriceOrderCount
	config.TradeCurrentCycle = parsed.TradeCurrentCycle
	config.Margin = parsed.Margin
	config.Position = parsed.Position

	if parsed.Indicator.Indicators != nil {
		config.Indicator.Indicators = parsed.Indicator.Indicators
	}
	if parsed.Indicator.Conditions.When != "" {
		config.Indicator.When = parsed.Indicator.Conditions.When
	}

	for name, clauses := range parsed.Indicator.Conditions.Long {
		config.Indicator.Long[name] = parseClauses(clauses)
	}
	for name, clauses := range parsed.Indicator.Conditions.Short {
		config.Indicator.Short[name] = parseClauses(clauses)
	}

	return config, nil
}

func parseClauses(raw []rawClause) []ConditionClause {
	clauses := make([]ConditionClause, 0, len(raw))

	for _, clause := range raw {
		clauses = append(clauses, ConditionClause{
			Operator:    clause.Condition.Operator,
			Expressions: parseValueExpressions(clause.Condition.Value),
		})
	}

	return clauses
}

// parseValueExpressions accepts a number, a string expression, or a list of
// either. Each entry is parsed once into a typed expression.
func parseValueExpressions(raw json.RawMessage) []indicator.Expression {
	if len(raw) == 0 {
		return nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		expressions := make([]indicator.Expression, 0, len(list))
		for _, entry := range list {
			expressions = append(expressions, parseSingleExpression(entry))
		}
		return expressions
	}

	return []indicator.Expression{parseSingleExpression(raw)}
}

func parseSingleExpression(raw json.RawMessage) indicator.Expression {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return indicator.ParseExpression(text)
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return indicator.ParseExpression(strconv.FormatFloat(number, 'f', -1, 64))
	}

	return indicator.ParseExpression(string(raw))
}

// Signals is the resolved indicator decision for one tick.
type Signals struct {
	Instances map[string][]indicator.Indicator
	Long      map[string]bool
	Short     map[string]bool
	LongOK    bool
	ShortOK   bool
}

// GetIndicator computes every configured indicator instance over the close
// series, evaluates both side's conditions and aggregates them under the
// configured policy.
func (c *BotConfig) GetIndicator(closes []float64, current float64) (*Signals, error) {
	signals := &Signals{
		Instances: map[string][]indicator.Indicator{},
		Long:      map[string]bool{},
		Short:     map[string]bool{},
	}

	for kind, paramSets := range c.Indicator.Indicators {
		if len(paramSets) == 0 {
			paramSets = [][]float64{nil}
		}

		for _, params := range paramSets {
			instance, err := indicator.New(kind, closes, params)
			if err != nil {
				return nil, err
			}

			instance.SetSymbolPrice(current)
			signals.Instances[kind] = append(signals.Instances[kind], instance)
		}
	}

	for kind, instances := range signals.Instances {
		if clauses, ok := c.Indicator.Long[kind]; ok {
			signals.Long[kind] = c.evaluateClauses(clauses, instances, signals.Instances, current)
		}
		if clauses, ok := c.Indicator.Short[kind]; ok {
			signals.Short[kind] = c.evaluateClauses(clauses, instances, signals.Instances, current)
		}
	}

	signals.LongOK = aggregate(c.Indicator.When, signals.Long)
	signals.ShortOK = aggregate(c.Indicator.When, signals.Short)

	return signals, nil
}

// evaluateClauses evaluates each clause and ANDs the results. A single
// clause applies against the whole instance list; with multiple clauses,
// clause k applies to instance k.
func (c *BotConfig) evaluateClauses(clauses []ConditionClause, instances []indicator.Indicator, all map[string][]indicator.Indicator, current float64) bool {
	if len(clauses) == 0 {
		return false
	}

	for k, clause := range clauses {
		targets := instances
		if len(clauses) > 1 {
			if k >= len(instances) {
				return false
			}
			targets = instances[k : k+1]
		}

		value := resolveClause(clause, current, all)
		if !indicator.NewCondition(targets, clause.Operator, value).IsSatisfied() {
			return false
		}
	}

	return true
}

func resolveClause(clause ConditionClause, current float64, all map[string][]indicator.Indicator) indicator.Value {
	switch len(clause.Expressions) {
	case 0:
		return indicator.Raw("")
	case 1:
		return clause.Expressions[0].Resolve(current, all)
	default:
		numbers := make([]float64, 0, len(clause.Expressions))
		for _, expression := range clause.Expressions {
			value := expression.Resolve(current, all)
			if !value.IsNumeric() {
				return indicator.Raw(value.Raw())
			}
			numbers = append(numbers, value.Numbers()...)
		}
		return indicator.Numbers(numbers)
	}
}

// aggregate folds per-indicator booleans into one side decision. Zero
// indicators disable the side under every policy.
func aggregate(when string, results map[string]bool) bool {
	if len(results) == 0 {
		return false
	}

	trueCount := 0
	for _, satisfied := range results {
		if satisfied {
			trueCount++
		}
	}

	switch when {
	case WhenAny:
		return trueCount > 0
	case WhenOnly:
		return trueCount == 1
	case WhenAll:
		return trueCount == len(results)
	default:
		return false
	}
}
