package indicator

import (
	"regexp"
	"strconv"
	"strings"
)

// Threshold expressions in strategy configs are either literal numbers or
// symbolic references resolved against live data:
//
//	@SYMBOL_PRICE                 current price
//	@SYMBOL_PRICE@ADD_PERC_1.5    current price plus 1.5%
//	@SYMBOL_PRICE@SUB_PERC_1.5    current price minus 1.5%
//	@INDICATOR_<name>_<ord>_<field>  field of another indicator instance

type expressionKind int

const (
	exprLiteral expressionKind = iota
	exprSymbolPrice
	exprSymbolPriceAdd
	exprSymbolPriceSub
	exprIndicatorRef
	exprUnresolved
)

var (
	addPercPattern   = regexp.MustCompile(`(?i)^@SYMBOL_PRICE@ADD_PERC_([0-9.]+)$`)
	subPercPattern   = regexp.MustCompile(`(?i)^@SYMBOL_PRICE@SUB_PERC_([0-9.]+)$`)
	indicatorPattern = regexp.MustCompile(`(?i)^@INDICATOR_([a-z]+)_([0-9]+)_([0-9]+)$`)
)

// Expression is one parsed threshold expression.
type Expression struct {
	kind    expressionKind
	literal float64
	percent float64
	name    string
	ordinal int
	field   int
	source  string
}

// ParseExpression parses a threshold string once into a typed expression.
// Anything unrecognized parses to an unresolved expression that later
// resolves to a raw Value.
func ParseExpression(source string) Expression {
	if len(source) == 0 || source[0] != '@' {
		if literal, err := strconv.ParseFloat(source, 64); err == nil {
			return Expression{kind: exprLiteral, literal: literal, source: source}
		}
		return Expression{kind: exprUnresolved, source: source}
	}

	if source == "@SYMBOL_PRICE" {
		return Expression{kind: exprSymbolPrice, source: source}
	}

	if match := addPercPattern.FindStringSubmatch(source); match != nil {
		percent, _ := strconv.ParseFloat(match[1], 64)
		return Expression{kind: exprSymbolPriceAdd, percent: percent, source: source}
	}

	if match := subPercPattern.FindStringSubmatch(source); match != nil {
		percent, _ := strconv.ParseFloat(match[1], 64)
		return Expression{kind: exprSymbolPriceSub, percent: percent, source: source}
	}

	if match := indicatorPattern.FindStringSubmatch(source); match != nil {
		ordinal, _ := strconv.Atoi(match[2])
		field, _ := strconv.Atoi(match[3])
		return Expression{kind: exprIndicatorRef, name: match[1], ordinal: ordinal, field: field, source: source}
	}

	return Expression{kind: exprUnresolved, source: source}
}

// Resolve evaluates the expression against the live price and the full set
// of computed indicator instances. Unresolvable references return a raw
// Value so comparisons fail closed.
func (e Expression) Resolve(symbolPrice float64, instances map[string][]Indicator) Value {
	switch e.kind {
	case exprLiteral:
		return Number(e.literal)

	case exprSymbolPrice:
		return Number(symbolPrice)

	case exprSymbolPriceAdd:
		return Number(symbolPrice + symbolPrice*e.percent/100)

	case exprSymbolPriceSub:
		return Number(symbolPrice - symbolPrice*e.percent/100)

	case exprIndicatorRef:
		for name, list := range instances {
			if !strings.EqualFold(name, e.name) {
				continue
			}
			if e.ordinal < len(list) {
				values := list[e.ordinal].Value()
				if e.field < len(values) {
					return Number(values[e.field])
				}
			}
		}
		return Raw(e.source)

	default:
		return Raw(e.source)
	}
}
