package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fjr-software/flinkbot-bot/src/exchange"
	"github.com/fjr-software/flinkbot-bot/src/model"
)

// manageExits walks every persisted position row, records margin usage for
// the entry gates and, for open positions, decides whether to place close
// orders. Close types, in priority: take-profit, stop-loss, absolute value
// triggers, account gain, max holding time for losers, then the prevent
// early exit.
func (a *Analyzer) manageExits(ctx context.Context, t *tick) error {
	config := a.bot.Config()
	position := config.Position
	exch := a.bot.Exchange()

	for i := range t.positions {
		row := &t.positions[i]

		t.marginAccountPercent = row.MarginAccountPercent
		t.marginSymbol[row.Side] = row.MarginSymbolPercent

		if row.Status != model.PositionStatusOpen {
			continue
		}
		t.hasPosition[row.Side] = true

		roi := row.PnlRoiPercent
		value := row.PnlRoiValue

		canGain := position.Profit > 0 && roi >= position.Profit && value >= position.MinimumGain
		canLoss := position.Loss > 0 && math.Abs(roi) >= position.Loss && math.Abs(value) >= position.MinimumLoss
		canGainValue := position.GainValue > 0 && value >= position.GainValue
		canLossValue := position.LossValue > 0 && value <= -position.LossValue
		canAccountGain := position.AccountGain > 0 && row.PnlAccountPercent >= position.AccountGain
		expired := position.MaxTime > 0 && value < 0 && row.OpenAt != nil &&
			exchange.TimePosition(*row.OpenAt) >= time.Duration(position.MaxTime)*time.Second

		wantGain := canGain || canGainValue || canAccountGain
		wantLoss := canLoss || canLossValue || expired
		canPrevent := position.Profit > 0 && !wantGain && !wantLoss &&
			roi >= position.Profit/4 && value >= position.MinimumGain

		if !wantGain && !wantLoss && !canPrevent {
			continue
		}

		// The max-time stop is a loss exit and is never vetoed.
		if wantGain && !wantLoss && a.collateralVeto(row, t.positions) {
			a.emit(ctx, fmt.Sprintf("Close position vetoed[collateral] - ROI: %.2f", roi))
			continue
		}

		ticker, err := exch.GetStaticsTicker(t.symbol)
		if err != nil {
			return err
		}

		markPrice := ticker.LastPrice
		if markPrice == 0 {
			markPrice = row.MarkPrice
		}
		if markPrice == 0 {
			continue
		}
		entryPrice := row.EntryPrice

		increment := a.triggerIncrement(ticker, row.Leverage)
		diffPrice := exchange.CalculeProfit(markPrice, increment) - markPrice

		priceGain := markPrice + diffPrice
		priceStop := markPrice - diffPrice
		if row.Side == model.SideShort {
			priceGain = markPrice - diffPrice
			priceStop = markPrice + diffPrice
		}

		if config.EnableHalfPriceProtection {
			priceStop = (priceStop + entryPrice) / 2
		}

		closeSide := exchange.OrderSideSell
		if row.Side == model.SideShort {
			closeSide = exchange.OrderSideBuy
		}

		typeClosed := "loss"
		if wantGain {
			typeClosed = "profit"
		}
		if expired && !canLoss && !canLossValue {
			typeClosed = "maxTime"
		}

		priceGain = exchange.FormatDecimal(markPrice, priceGain)
		priceStop = exchange.FormatDecimal(markPrice, priceStop)

		t.canGainLoss = true
		t.targets[row.Side] = priceGain

		if a.hasCloser(t.reduceOrders, closeSide) {
			continue
		}

		if canPrevent {
			t.canGainLoss = roi >= position.Profit/2
			diffPrice = exchange.CalculeProfit(
				entryPrice,
				position.Profit/float64(row.Leverage)+config.IncrementTriggerPercentage,
			) - entryPrice

			avgEntryMark := (entryPrice + markPrice) / 2
			priceGain = avgEntryMark + diffPrice
			if row.Side == model.SideShort {
				priceGain = avgEntryMark - diffPrice
			}

			priceGain = exchange.FormatDecimal(markPrice, priceGain)
			t.targets[row.Side] = priceGain
			typeClosed = "prevent"
		}

		quantity := a.partialQuantity(row.Size, t.symbolRow.MinQuantity, t.symbolInfo)

		orderProfit, err := a.closeWithRetry(t.symbol, row.Side, priceGain, false, quantity, func(mark float64) float64 {
			diff := exchange.CalculeProfit(mark, increment) - mark
			if row.Side == model.SideShort {
				return exchange.FormatDecimal(mark, mark-diff)
			}
			return exchange.FormatDecimal(mark, mark+diff)
		})
		if err != nil {
			return err
		}
		if err := a.persistOrder(ctx, t.symbolRow, orderProfit, nil); err != nil {
			return err
		}

		// Prevent mode never places the stop leg.
		if !canPrevent {
			orderStop, err := a.closeWithRetry(t.symbol, row.Side, priceStop, true, quantity, func(mark float64) float64 {
				diff := exchange.CalculeProfit(mark, increment) - mark
				if row.Side == model.SideShort {
					return exchange.FormatDecimal(mark, mark+diff)
				}
				return exchange.FormatDecimal(mark, mark-diff)
			})
			if err != nil {
				return err
			}
			if err := a.persistOrder(ctx, t.symbolRow, orderStop, nil); err != nil {
				return err
			}
		}

		a.emit(ctx, fmt.Sprintf("Close position[%s] - ROI: %.2f", typeClosed, roi))
	}

	return nil
}

// collateralVeto blocks a gain-close while the hedge side is deeply
// underwater but has not itself reached the minimum-loss amount that would
// let it exit. Closing the winner there would strip the losing side of its
// cushion.
func (a *Analyzer) collateralVeto(row *model.Position, positions []model.Position) bool {
	position := a.bot.Config().Position
	if position.Loss <= 0 {
		return false
	}

	hedgeSide := model.SideShort
	if row.Side == model.SideShort {
		hedgeSide = model.SideLong
	}

	for i := range positions {
		hedge := &positions[i]
		if hedge.Side != hedgeSide || hedge.Status != model.PositionStatusOpen {
			continue
		}

		deepLoss := hedge.PnlRoiValue < 0 && math.Abs(hedge.PnlRoiPercent) >= position.Loss
		belowMinimum := math.Abs(hedge.PnlRoiValue) < position.MinimumLoss

		if deepLoss && belowMinimum {
			return true
		}
	}

	return false
}

// triggerIncrement scales the configured trigger increment by the recent
// high-low range relative to the per-price profit target, capped by the
// configured multiplier.
func (a *Analyzer) triggerIncrement(ticker *exchange.Ticker, leverage int) float64 {
	config := a.bot.Config()
	increment := config.IncrementTriggerPercentage

	if increment <= 0 || config.Position.Profit <= 0 || leverage <= 0 || config.MultiplierIncrementTrigger <= 1 {
		return increment
	}

	rangePercent := exchange.Percentage(ticker.LastPrice, ticker.HighPrice-ticker.LowPrice)
	targetPercent := config.Position.Profit / float64(leverage)
	if targetPercent <= 0 || rangePercent <= 0 {
		return increment
	}

	multiplier := int(rangePercent / targetPercent)
	if multiplier < 1 {
		multiplier = 1
	}
	if multiplier > config.MultiplierIncrementTrigger {
		multiplier = config.MultiplierIncrementTrigger
	}

	return increment * float64(multiplier)
}

// partialQuantity returns the reduce-only quantity for a partial close, or 0
// for a full close. A partial only happens when both the slice and the
// remainder stay at or above the symbol minimum.
func (a *Analyzer) partialQuantity(size, minQuantity float64, symbolInfo *exchange.SymbolInfo) float64 {
	percent := a.bot.Config().Position.PartialPercentage
	if percent <= 0 || percent >= 100 || size <= 0 {
		return 0
	}

	quantityRef := math.Pow(10, -float64(symbolInfo.QuantityPrecision))
	part := exchange.FormatDecimal(quantityRef, size*percent/100)

	if part < minQuantity || size-part < minQuantity {
		return 0
	}

	return part
}

func (a *Analyzer) hasCloser(reduceOrders []exchange.Order, side string) bool {
	for _, order := range reduceOrders {
		if order.Side == side {
			return true
		}
	}
	return false
}

// closeWithRetry places a close order, recomputing the trigger price from a
// fresh mark when the exchange rejects it as immediately triggering.
func (a *Analyzer) closeWithRetry(symbol, positionSide string, price float64, stop bool, quantity float64, recompute func(mark float64) float64) (*exchange.Order, error) {
	exch := a.bot.Exchange()

	var lastErr error

	for attempt := 0; attempt < closeRetryAttempts; attempt++ {
		order, err := exch.ClosePosition(symbol, positionSide, price, stop, quantity)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, exchange.ErrImmediateTrigger) {
			return nil, err
		}
		lastErr = err

		ticker, tickerErr := exch.GetStaticsTicker(symbol)
		if tickerErr != nil {
			return nil, tickerErr
		}
		price = recompute(ticker.LastPrice)
	}

	return nil, lastErr
}
