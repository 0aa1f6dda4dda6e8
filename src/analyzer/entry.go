package analyzer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fjr-software/flinkbot-bot/src/exchange"
	"github.com/fjr-software/flinkbot-bot/src/model"
)

// orderHygiene cancels stale working orders. Plain entries expire after the
// common timeout. Reduce-only triggers expire after the trigger timeout when
// a gain/loss condition is live, otherwise after the much longer idle
// timeout; a live trigger whose price drifted too far from the fresh target
// is replaced in place.
func (a *Analyzer) orderHygiene(ctx context.Context, t *tick) error {
	config := a.bot.Config()
	exch := a.bot.Exchange()

	for _, order := range t.plainOrders {
		if !exchange.IsTimeBoxOrder(order.Time, time.Duration(config.OrderCommonTimeout)*time.Second) {
			continue
		}

		if err := exch.CancelOrder(order.Symbol, order.OrderID); err != nil {
			return err
		}
		a.emit(ctx, "Order timeout[common]")
	}

	for _, order := range t.reduceOrders {
		timeout, label := config.OrderLongTriggerTimeout, "longTrigger"
		if t.canGainLoss {
			timeout, label = config.OrderTriggerTimeout, "trigger"
		}

		if exchange.IsTimeBoxOrder(order.Time, time.Duration(timeout)*time.Second) {
			if err := exch.CancelOrder(order.Symbol, order.OrderID); err != nil {
				return err
			}
			a.emit(ctx, fmt.Sprintf("Order timeout[%s]", label))
			continue
		}

		target := t.targets[order.PositionSide]
		if target <= 0 || order.StopPrice <= 0 {
			continue
		}

		drift := math.Abs(exchange.Percentage(target, order.StopPrice-target))
		if drift <= driftTolerancePercent {
			continue
		}

		if err := exch.CancelOrder(order.Symbol, order.OrderID); err != nil {
			return err
		}

		quantity := 0.0
		if order.ReduceOnly {
			quantity = order.OrigQty
		}
		stop := order.Type == model.OrderTypeStopMarket || order.OrigType == model.OrderTypeStopMarket

		replacement, err := a.closeWithRetry(t.symbol, order.PositionSide, target, stop, quantity, func(mark float64) float64 {
			return target
		})
		if err != nil {
			return err
		}
		if err := a.persistOrder(ctx, t.symbolRow, replacement, nil); err != nil {
			return err
		}

		a.emit(ctx, fmt.Sprintf("Order trigger drift[%s] - %v - %v", order.PositionSide, order.StopPrice, target))
	}

	return nil
}

// placeEntry applies the entry gates for the signaled side and places a
// LIMIT/GTC order at the top of the book when every gate passes.
func (a *Analyzer) placeEntry(ctx context.Context, t *tick) error {
	if t.side == "" {
		return nil
	}

	config := a.bot.Config()
	exch := a.bot.Exchange()

	if config.OperationSide != "both" && !equalSide(config.OperationSide, t.side) {
		a.emit(ctx, fmt.Sprintf("Without %s operation[operationSide]", t.side))
		return nil
	}
	if t.symbolRow.Status != model.SymbolStatusActive || !t.symbolRow.AllowsSide(t.side) {
		a.emit(ctx, fmt.Sprintf("Without %s operation[symbolSide]", t.side))
		return nil
	}

	price := t.book.BestAsk()
	orderSide := exchange.OrderSideSell
	if t.side == model.SideLong {
		price = t.book.BestBid()
		orderSide = exchange.OrderSideBuy
	}
	if price <= 0 {
		a.emit(ctx, fmt.Sprintf("Without %s operation[emptyBook]", t.side))
		return nil
	}

	quantity := t.symbolRow.BaseQuantity
	if quantity < t.symbolRow.MinQuantity {
		quantity = t.symbolRow.MinQuantity
	}

	// Margin headroom is simulated forward by the usage one more entry
	// would add on the symbol level.
	addPercent := 0.0
	if t.symbolRow.Leverage > 0 {
		addPercent = exchange.Percentage(t.account.TotalWalletBalance, quantity*price/float64(t.symbolRow.Leverage))
	}
	limitMarginAccount := t.marginAccountPercent < config.Margin.Account
	limitMarginSymbol := t.marginSymbol[t.side]+addPercent < config.Margin.Symbol
	limitMargin := limitMarginAccount && limitMarginSymbol

	if len(t.plainOrders) > 0 || (t.hasPosition[t.side] && !limitMargin) {
		reason := ""
		if !limitMargin {
			reason = "marginSymbol"
			if !limitMarginAccount {
				reason = "marginAccount"
			}
		}
		if len(t.plainOrders) > 0 {
			reason = "openOrders"
		}

		a.emit(ctx, fmt.Sprintf("Without %s operation[%s]", t.side, reason))
		return nil
	}

	lastEntry, err := a.orders.FindLastEntry(ctx, a.bot.UserID(), t.symbolRow.ID, t.side)
	if err != nil {
		return err
	}
	if lastEntry != nil && config.Position.FilledTime > 0 &&
		a.now().Sub(lastEntry.UpdatedAt) < time.Duration(config.Position.FilledTime)*time.Second {
		a.emit(ctx, fmt.Sprintf("Recently closed %s order", t.side))
		return nil
	}

	since := a.now().Add(-intervalDuration(config.Interval))
	avgPrice, err := a.orders.AvgFilledPrice(ctx, a.bot.UserID(), t.symbolRow.ID, t.side, since, config.AveragePriceOrderCount)
	if err != nil {
		return err
	}
	if avgPrice > 0 {
		favorable := price > avgPrice
		if t.side == model.SideLong {
			favorable = price < avgPrice
		}
		if !favorable {
			a.emit(ctx, fmt.Sprintf(
				"The current price is unfavorable[%s] - %v - %v",
				t.side, price, exchange.FormatDecimal(price, avgPrice),
			))
			return nil
		}
	}

	order, err := exch.CreateOrder(exchange.OrderSpec{
		Symbol:       t.symbol,
		Side:         orderSide,
		PositionSide: t.side,
		Type:         model.OrderTypeLimit,
		TimeInForce:  model.TimeInForceGTC,
		Quantity:     quantity,
		Price:        price,
	})
	if err != nil {
		return err
	}
	if err := a.persistOrder(ctx, t.symbolRow, order, nil); err != nil {
		return err
	}

	a.emit(ctx, "Open position")

	return nil
}

func equalSide(configured, side string) bool {
	switch side {
	case model.SideLong:
		return configured == "long" || configured == "LONG"
	case model.SideShort:
		return configured == "short" || configured == "SHORT"
	default:
		return false
	}
}
