package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// Known indicator kinds. The set is closed; construction is a switch, not a
// lookup table of arbitrary names.
const (
	KindMovingAverageSMA = "MovingAverageSMA"
	KindMovingAverageEMA = "MovingAverageEMA"
	KindStochasticRSI    = "StochasticRSI"
	KindAroon            = "Aroon"
	KindSupport          = "Support"
	KindResistance       = "Resistance"
)

// Indicator is one computed indicator instance. Value returns the computed
// output fields (empty when the series was too short), the first field is
// the primary comparison value.
type Indicator interface {
	Kind() string
	Value() []float64
	SetSymbolPrice(price float64)
	SymbolPrice() float64
}

type base struct {
	kind        string
	values      []float64
	symbolPrice float64
}

func (b *base) Kind() string { return b.kind }

func (b *base) Value() []float64 { return b.values }

func (b *base) SetSymbolPrice(price float64) { b.symbolPrice = price }

func (b *base) SymbolPrice() float64 { return b.symbolPrice }

func lastOf(series []float64) []float64 {
	if len(series) == 0 {
		return nil
	}

	last := series[len(series)-1]
	if last != last { // NaN from a warm-up window
		return nil
	}

	return []float64{last}
}

func intParam(params []float64, index int, fallback int) int {
	if index < len(params) && params[index] > 0 {
		return int(params[index])
	}
	return fallback
}

// New builds one indicator instance over a close-price series. params carry
// the period configuration, missing entries fall back to common defaults.
func New(kind string, closes []float64, params []float64) (Indicator, error) {
	switch kind {
	case KindMovingAverageSMA:
		period := intParam(params, 0, 14)
		instance := &base{kind: kind}
		if len(closes) >= period && period > 0 {
			instance.values = lastOf(talib.Sma(closes, period))
		}
		return instance, nil

	case KindMovingAverageEMA:
		period := intParam(params, 0, 14)
		instance := &base{kind: kind}
		if len(closes) >= period && period > 0 {
			instance.values = lastOf(talib.Ema(closes, period))
		}
		return instance, nil

	case KindStochasticRSI:
		period := intParam(params, 0, 14)
		fastK := intParam(params, 1, 3)
		fastD := intParam(params, 2, 3)
		instance := &base{kind: kind}
		if len(closes) > period+fastK+fastD {
			k, d := talib.StochRsi(closes, period, fastK, fastD, talib.SMA)
			kLast := lastOf(k)
			dLast := lastOf(d)
			if kLast != nil && dLast != nil {
				instance.values = []float64{kLast[0], dLast[0]}
			}
		}
		return instance, nil

	case KindAroon:
		period := intParam(params, 0, 14)
		instance := &base{kind: kind}
		if len(closes) > period {
			down, up := talib.Aroon(closes, closes, period)
			downLast := lastOf(down)
			upLast := lastOf(up)
			if downLast != nil && upLast != nil {
				instance.values = []float64{upLast[0], downLast[0]}
			}
		}
		return instance, nil

	case KindSupport:
		period := intParam(params, 0, 14)
		instance := &base{kind: kind}
		if len(closes) >= period && period > 0 {
			instance.values = lastOf(talib.Min(closes, period))
		}
		return instance, nil

	case KindResistance:
		period := intParam(params, 0, 14)
		instance := &base{kind: kind}
		if len(closes) >= period && period > 0 {
			instance.values = lastOf(talib.Max(closes, period))
		}
		return instance, nil

	default:
		return nil, fmt.Errorf("indicator: unknown kind %q", kind)
	}
}
