package account

import (
	"context"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/fjr-software/flinkbot-bot/src/exchange"
	"github.com/fjr-software/flinkbot-bot/src/model"
	"github.com/fjr-software/flinkbot-bot/src/repository"
)

// cycleTargetPercent is the hourly equity growth target that triggers one
// round of base quantity compounding.
const cycleTargetPercent = 10.0

// Reconciler pulls the live account and position state from the exchange,
// recomputes metrics, persists position rows and drives the account value
// cycle.
type Reconciler struct {
	bot       *Bot
	symbols   *repository.SymbolRepository
	positions *repository.PositionRepository
	cycles    *repository.CycleRepository

	exchangeInfo *exchange.ExchangeInfo

	now func() time.Time
}

// NewReconciler builds a reconciler using the main database repositories.
func NewReconciler(bot *Bot) *Reconciler {
	return &Reconciler{
		bot:       bot,
		symbols:   repository.NewSymbolRepository(),
		positions: repository.NewPositionRepository(),
		cycles:    repository.NewCycleRepository(),
		now:       time.Now,
	}
}

// WithRepositories overrides the backing repositories.
func (r *Reconciler) WithRepositories(symbols *repository.SymbolRepository, positions *repository.PositionRepository, cycles *repository.CycleRepository) *Reconciler {
	r.symbols = symbols
	r.positions = positions
	r.cycles = cycles
	return r
}

// Execute reconciles one symbol: account metrics, per-side position rows,
// min-quantity correction and the compounding cycle.
func (r *Reconciler) Execute(ctx context.Context, pair string) error {
	symbolRow, err := r.symbols.FindByBotAndPair(ctx, r.bot.ID(), pair)
	if err != nil {
		return err
	}
	if symbolRow == nil {
		logger.WithFields(map[string]interface{}{
			"bot_id": r.bot.ID(),
			"pair":   pair,
		}).Warn("Symbol not configured, skipping reconcile")
		return nil
	}

	exch := r.bot.Exchange()

	accountInfo, err := exch.GetAccountInformation()
	if err != nil {
		return err
	}

	positions, err := exch.GetPosition(pair)
	if err != nil {
		return err
	}

	marginAccountPercent := exchange.Percentage(accountInfo.TotalMarginBalance, accountInfo.TotalMaintMargin)
	if marginAccountPercent != 0 {
		marginAccountPercent = 100 - marginAccountPercent
	}

	pnlAccountPercent := exchange.Percentage(accountInfo.TotalWalletBalance, math.Round(accountInfo.TotalUnrealizedProfit*100)/100)

	if err := r.updateCycle(ctx, accountInfo.TotalWalletBalance); err != nil {
		logger.WithError(err).Warn("Account value cycle update failed")
	}

	for _, position := range positions {
		size := math.Abs(position.PositionAmt)

		marginType := model.MarginTypeIsolated
		if position.MarginType == "CROSSED" || position.MarginType == "CROSS" {
			marginType = model.MarginTypeCrossed
		}

		marginSymbolPercent := 0.0
		if size > 0 && position.Leverage > 0 {
			marginSymbol := math.Abs(position.Notional) / float64(position.Leverage)
			marginSymbolPercent = exchange.Percentage(accountInfo.TotalWalletBalance, marginSymbol)
		}

		status := model.PositionStatusClosed
		if size > 0 {
			status = model.PositionStatusOpen
		}

		roiPercent := 0.0
		if size > 0 {
			reference, compared := position.EntryPrice, position.MarkPrice
			if position.PositionSide == model.SideLong {
				reference, compared = position.MarkPrice, position.EntryPrice
			}
			if percent := exchange.Percentage(reference, compared); percent != 0 {
				roiPercent = (100 - percent) * float64(position.Leverage)
			}
		}

		symbolInfo, err := r.symbolExchange(pair)
		if err != nil {
			return err
		}
		if symbolInfo == nil {
			continue
		}

		markPrice := position.MarkPrice
		if markPrice == 0 {
			ticker, err := exch.GetStaticsTicker(pair)
			if err != nil {
				return err
			}
			markPrice = ticker.LastPrice
		}
		if markPrice == 0 {
			continue
		}

		priceRef := math.Pow(10, -float64(symbolInfo.PricePrecision))
		entryPrice := exchange.FormatDecimal(priceRef, position.EntryPrice)
		breakEvenPrice := exchange.FormatDecimal(priceRef, position.BreakEvenPrice)
		liquidationPrice := exchange.FormatDecimal(priceRef, position.LiquidationPrice)
		markPrice = exchange.FormatDecimal(priceRef, markPrice)

		minQuantity := r.minQuantity(symbolInfo, markPrice)
		if minQuantity > 0 && symbolRow.MinQuantity != minQuantity {
			if err := r.symbols.UpdateMinQuantity(ctx, r.bot.ID(), pair, minQuantity); err != nil {
				return err
			}
			symbolRow.MinQuantity = minQuantity
		}

		err = r.upsertPosition(ctx, positionUpdate{
			symbolID:             symbolRow.ID,
			side:                 position.PositionSide,
			leverage:             position.Leverage,
			entryPrice:           entryPrice,
			breakEvenPrice:       breakEvenPrice,
			size:                 size,
			roiPercent:           roiPercent,
			roiValue:             position.UnrealizedProfit,
			pnlAccountPercent:    pnlAccountPercent,
			marginAccountPercent: marginAccountPercent,
			marginSymbolPercent:  marginSymbolPercent,
			markPrice:            markPrice,
			liquidationPrice:     liquidationPrice,
			marginType:           marginType,
			status:               status,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Get returns the persisted position rows for one symbol.
func (r *Reconciler) Get(ctx context.Context, pair string) ([]model.Position, error) {
	symbolRow, err := r.symbols.FindByBotAndPair(ctx, r.bot.ID(), pair)
	if err != nil || symbolRow == nil {
		return nil, err
	}

	return r.positions.FindBySymbol(ctx, r.bot.UserID(), symbolRow.ID)
}

// minQuantity derives the smallest tradable quantity from the MIN_NOTIONAL
// and LOT_SIZE filters: round notional/mark to the quantity precision, then
// step up until the notional floor is met.
func (r *Reconciler) minQuantity(symbolInfo *exchange.SymbolInfo, markPrice float64) float64 {
	notionalFilter := symbolInfo.Filter(exchange.FilterTypeMinNotional)
	lotFilter := symbolInfo.Filter(exchange.FilterTypeLotSize)

	if notionalFilter == nil || lotFilter == nil || markPrice <= 0 {
		return 0
	}

	notional := notionalFilter.Notional
	stepSize := lotFilter.StepSize
	if notional <= 0 || stepSize <= 0 {
		return 0
	}

	quantityRef := math.Pow(10, -float64(symbolInfo.QuantityPrecision))
	quantity := exchange.FormatDecimal(quantityRef, notional/markPrice)

	for quantity*markPrice < notional {
		quantity += stepSize
	}

	return exchange.FormatDecimal(quantityRef, quantity)
}

type positionUpdate struct {
	symbolID             uint
	side                 string
	leverage             int
	entryPrice           float64
	breakEvenPrice       float64
	size                 float64
	roiPercent           float64
	roiValue             float64
	pnlAccountPercent    float64
	marginAccountPercent float64
	marginSymbolPercent  float64
	markPrice            float64
	liquidationPrice     float64
	marginType           string
	status               string
}

// upsertPosition writes one (user, symbol, side) row, stamping open_at on
// closed->open transitions and close_at on open->closed. Running the same
// data twice leaves the timestamps untouched.
func (r *Reconciler) upsertPosition(ctx context.Context, update positionUpdate) error {
	existing, err := r.positions.FindByUserSymbolSide(ctx, r.bot.UserID(), update.symbolID, update.side)
	if err != nil {
		return err
	}

	now := r.now()

	row := existing
	if row == nil {
		row = &model.Position{
			UserID:   r.bot.UserID(),
			SymbolID: update.symbolID,
			Side:     update.side,
		}
		if update.status == model.PositionStatusOpen {
			row.OpenAt = &now
		}
	} else {
		switch {
		case row.Status == model.PositionStatusClosed && update.status == model.PositionStatusOpen:
			row.OpenAt = &now
			row.CloseAt = nil
		case row.Status == model.PositionStatusOpen && update.status == model.PositionStatusClosed:
			row.CloseAt = &now
		case row.OpenAt == nil && row.Status == model.PositionStatusOpen && update.status == model.PositionStatusOpen:
			row.OpenAt = &now
			row.CloseAt = nil
		}
	}

	row.Leverage = update.leverage
	row.EntryPrice = update.entryPrice
	row.BreakEvenPrice = update.breakEvenPrice
	row.Size = update.size
	row.PnlRoiPercent = update.roiPercent
	row.PnlRoiValue = update.roiValue
	row.PnlAccountPercent = update.pnlAccountPercent
	row.MarginAccountPercent = update.marginAccountPercent
	row.MarginSymbolPercent = update.marginSymbolPercent
	row.MarkPrice = update.markPrice
	row.LiquidPrice = update.liquidationPrice
	row.MarginType = update.marginType
	row.Status = update.status

	return r.positions.Save(ctx, row)
}

// updateCycle maintains the hour-bucketed account value cycle. When the
// current equity crosses the target, the cycle is marked done exactly once
// and every active symbol's base quantity is compounded by the same percent.
func (r *Reconciler) updateCycle(ctx context.Context, currentValue float64) error {
	period := r.now().Truncate(time.Hour)

	cycle, err := r.cycles.FindByBotAndPeriod(ctx, r.bot.ID(), period)
	if err != nil {
		return err
	}

	if cycle == nil {
		return r.cycles.Create(ctx, &model.AccountValueCycle{
			BotID:        r.bot.ID(),
			Period:       period,
			CurrentValue: currentValue,
			TargetValue:  currentValue + currentValue*cycleTargetPercent/100,
		})
	}

	if cycle.Done {
		return nil
	}

	cycle.CurrentValue = currentValue

	if cycle.CurrentValue >= cycle.TargetValue {
		cycle.Done = true

		if err := r.compoundSymbols(ctx); err != nil {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"bot_id": r.bot.ID(),
			"period": period,
			"value":  currentValue,
		}).Info("Account value cycle target reached")
	}

	return r.cycles.Save(ctx, cycle)
}

// compoundSymbols raises every active symbol's base quantity by the cycle
// target percentage, rounded to the exchange quantity precision.
func (r *Reconciler) compoundSymbols(ctx context.Context) error {
	symbols, err := r.symbols.FindActiveByBot(ctx, r.bot.ID())
	if err != nil {
		return err
	}

	for _, symbol := range symbols {
		symbolInfo, err := r.symbolExchange(symbol.Pair)
		if err != nil {
			return err
		}
		if symbolInfo == nil {
			continue
		}

		quantityRef := math.Pow(10, -float64(symbolInfo.QuantityPrecision))
		baseQuantity := symbol.BaseQuantity + symbol.BaseQuantity*cycleTargetPercent/100
		baseQuantity = exchange.FormatDecimal(quantityRef, baseQuantity)

		if baseQuantity > symbol.BaseQuantity {
			if err := r.symbols.UpdateBaseQuantity(ctx, symbol.ID, baseQuantity); err != nil {
				return err
			}
		}
	}

	return nil
}

// CurrentCycle returns the cycle row of the running hour, nil when absent.
func (r *Reconciler) CurrentCycle(ctx context.Context) (*model.AccountValueCycle, error) {
	return r.cycles.FindByBotAndPeriod(ctx, r.bot.ID(), r.now().Truncate(time.Hour))
}

// symbolExchange resolves cached exchange metadata for a pair.
func (r *Reconciler) symbolExchange(pair string) (*exchange.SymbolInfo, error) {
	if r.exchangeInfo == nil {
		info, err := r.bot.Exchange().GetExchangeInfo()
		if err != nil {
			return nil, err
		}
		r.exchangeInfo = info
	}

	return r.exchangeInfo.Symbol(pair), nil
}
