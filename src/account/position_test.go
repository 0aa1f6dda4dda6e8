package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fjr-software/flinkbot-bot/src/database"
	"github.com/fjr-software/flinkbot-bot/src/exchange"
	"github.com/fjr-software/flinkbot-bot/src/model"
	"github.com/fjr-software/flinkbot-bot/src/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	return db
}

func btcExchangeInfo() exchange.ExchangeInfo {
	return exchange.ExchangeInfo{
		Symbols: []exchange.SymbolInfo{{
			Symbol:            "BTCUSDT",
			PricePrecision:    2,
			QuantityPrecision: 3,
			Filters: []exchange.Filter{
				{FilterType: exchange.FilterTypeMinNotional, Notional: 5},
				{FilterType: exchange.FilterTypeLotSize, StepSize: 0.001, MinQuantity: 0.001},
			},
		}},
	}
}

func seedBotAndSymbol(t *testing.T, db *gorm.DB) (*model.Bot, *model.Symbol) {
	t.Helper()

	bot := &model.Bot{UserID: 1, Name: "alpha", Exchange: "BINANCE", Status: model.BotStatusActive}
	require.NoError(t, db.Create(bot).Error)

	symbol := &model.Symbol{
		BotID:        bot.ID,
		Pair:         "BTCUSDT",
		Leverage:     10,
		Side:         model.SideBoth,
		BaseQuantity: 0.01,
		MinQuantity:  0.001,
		Status:       model.SymbolStatusActive,
	}
	require.NoError(t, db.Create(symbol).Error)

	return bot, symbol
}

func newTestReconciler(t *testing.T, db *gorm.DB, botRow *model.Bot, fake *fakeExchange) *Reconciler {
	t.Helper()

	config, err := NewBotConfig("")
	require.NoError(t, err)

	bot := NewBot(botRow, config, fake)

	return NewReconciler(bot).WithRepositories(
		(&repository.SymbolRepository{}).WithDB(db),
		(&repository.PositionRepository{}).WithDB(db),
		(&repository.CycleRepository{}).WithDB(db),
	)
}

func TestReconcilerUpsertIdempotence(t *testing.T) {
	db := newTestDB(t)
	botRow, symbol := seedBotAndSymbol(t, db)
	ctx := context.Background()

	fake := &fakeExchange{
		accountInfo: exchange.AccountInformation{
			TotalWalletBalance:    1000,
			TotalMarginBalance:    1000,
			TotalMaintMargin:      80,
			TotalUnrealizedProfit: 12,
		},
		positions: []exchange.PositionRisk{{
			Symbol:       "BTCUSDT",
			PositionSide: model.SideLong,
			PositionAmt:  0.5,
			EntryPrice:   25000,
			MarkPrice:    26000,
			Leverage:     10,
			MarginType:   "CROSSED",
			Notional:     13000,
		}},
		exchangeInfo: btcExchangeInfo(),
	}

	reconciler := newTestReconciler(t, db, botRow, fake)
	require.NoError(t, reconciler.Execute(ctx, "BTCUSDT"))

	var first model.Position
	require.NoError(t, db.Where("symbol_id = ? AND side = ?", symbol.ID, model.SideLong).First(&first).Error)
	require.NotNil(t, first.OpenAt)
	assert.Nil(t, first.CloseAt)
	assert.Equal(t, model.PositionStatusOpen, first.Status)

	// Run again with identical data: no extra row and unchanged timestamps.
	require.NoError(t, reconciler.Execute(ctx, "BTCUSDT"))

	var count int64
	require.NoError(t, db.Model(&model.Position{}).
		Where("symbol_id = ? AND side = ?", symbol.ID, model.SideLong).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var second model.Position
	require.NoError(t, db.Where("symbol_id = ? AND side = ?", symbol.ID, model.SideLong).First(&second).Error)
	require.NotNil(t, second.OpenAt)
	assert.WithinDuration(t, *first.OpenAt, *second.OpenAt, time.Millisecond)
	assert.Nil(t, second.CloseAt)
}

func TestReconcilerMetrics(t *testing.T) {
	db := newTestDB(t)
	botRow, symbol := seedBotAndSymbol(t, db)
	ctx := context.Background()

	fake := &fakeExchange{
		accountInfo: exchange.AccountInformation{
			TotalWalletBalance: 1000,
			TotalMarginBalance: 1000,
			TotalMaintMargin:   80,
		},
		positions: []exchange.PositionRisk{{
			Symbol:           "BTCUSDT",
			PositionSide:     model.SideLong,
			PositionAmt:      0.5,
			EntryPrice:       25000,
			MarkPrice:        26000,
			Leverage:         10,
			MarginType:       "CROSSED",
			Notional:         13000,
			UnrealizedProfit: 500,
		}},
		exchangeInfo: btcExchangeInfo(),
	}

	reconciler := newTestReconciler(t, db, botRow, fake)
	require.NoError(t, reconciler.Execute(ctx, "BTCUSDT"))

	var row model.Position
	require.NoError(t, db.Where("symbol_id = ? AND side = ?", symbol.ID, model.SideLong).First(&row).Error)

	// 100 - (80/1000)*100 = 92.
	assert.InDelta(t, 92.0, row.MarginAccountPercent, 0.0001)
	// (13000/10)/1000 * 100 = 130.
	assert.InDelta(t, 130.0, row.MarginSymbolPercent, 0.0001)
	// LONG ROI: (26000-25000)/26000 * 100 * leverage 10.
	assert.InDelta(t, (100-exchange.Percentage(26000, 25000))*10, row.PnlRoiPercent, 0.0001)
	assert.Equal(t, 500.0, row.PnlRoiValue)
	assert.Equal(t, model.MarginTypeCrossed, row.MarginType)
	assert.Equal(t, 0.5, row.Size)
}

func TestReconcilerMinQuantityCorrection(t *testing.T) {
	db := newTestDB(t)
	botRow, _ := seedBotAndSymbol(t, db)
	ctx := context.Background()

	fake := &fakeExchange{
		accountInfo: exchange.AccountInformation{TotalWalletBalance: 1000, TotalMarginBalance: 1000},
		positions: []exchange.PositionRisk{{
			Symbol:       "BTCUSDT",
			PositionSide: model.SideLong,
			PositionAmt:  0,
			MarkPrice:    25000,
			Leverage:     10,
			MarginType:   "cross",
		}},
		exchangeInfo: btcExchangeInfo(),
	}

	reconciler := newTestReconciler(t, db, botRow, fake)

	// notional=5, step=0.001, mark=25000: 5/25000 rounds to 0.000 at
	// precision 3, stepping up to 0.001 which satisfies qty*mark >= 5.
	minQuantity := reconciler.minQuantity(fake.exchangeInfo.Symbol("BTCUSDT"), 25000)
	assert.Equal(t, 0.001, minQuantity)
	assert.GreaterOrEqual(t, minQuantity*25000, 5.0)

	require.NoError(t, reconciler.Execute(ctx, "BTCUSDT"))

	stored, err := (&repository.SymbolRepository{}).WithDB(db).FindByBotAndPair(ctx, botRow.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.001, stored.MinQuantity)
}

func TestReconcilerMarkPriceTickerFallback(t *testing.T) {
	db := newTestDB(t)
	botRow, symbol := seedBotAndSymbol(t, db)
	ctx := context.Background()

	fake := &fakeExchange{
		accountInfo: exchange.AccountInformation{TotalWalletBalance: 1000, TotalMarginBalance: 1000},
		positions: []exchange.PositionRisk{{
			Symbol:       "BTCUSDT",
			PositionSide: model.SideShort,
			PositionAmt:  -0.25,
			EntryPrice:   25000,
			MarkPrice:    0,
			Leverage:     5,
			MarginType:   "isolated",
			Notional:     -6000,
		}},
		exchangeInfo: btcExchangeInfo(),
		ticker:       exchange.Ticker{LastPrice: 24000},
	}

	reconciler := newTestReconciler(t, db, botRow, fake)
	require.NoError(t, reconciler.Execute(ctx, "BTCUSDT"))

	var row model.Position
	require.NoError(t, db.Where("symbol_id = ? AND side = ?", symbol.ID, model.SideShort).First(&row).Error)
	assert.Equal(t, 24000.0, row.MarkPrice)
	assert.Equal(t, model.MarginTypeIsolated, row.MarginType)
}

func TestReconcilerOpenCloseTransitions(t *testing.T) {
	db := newTestDB(t)
	botRow, symbol := seedBotAndSymbol(t, db)
	ctx := context.Background()

	fake := &fakeExchange{
		accountInfo: exchange.AccountInformation{TotalWalletBalance: 1000, TotalMarginBalance: 1000},
		positions: []exchange.PositionRisk{{
			Symbol:       "BTCUSDT",
			PositionSide: model.SideLong,
			PositionAmt:  0.5,
			EntryPrice:   25000,
			MarkPrice:    25500,
			Leverage:     10,
			MarginType:   "cross",
			Notional:     12750,
		}},
		exchangeInfo: btcExchangeInfo(),
	}

	reconciler := newTestReconciler(t, db, botRow, fake)
	require.NoError(t, reconciler.Execute(ctx, "BTCUSDT"))

	// Position fully closed on the exchange.
	fake.positions[0].PositionAmt = 0
	require.NoError(t, reconciler.Execute(ctx, "BTCUSDT"))

	var row model.Position
	require.NoError(t, db.Where("symbol_id = ? AND side = ?", symbol.ID, model.SideLong).First(&row).Error)
	assert.Equal(t, model.PositionStatusClosed, row.Status)
	require.NotNil(t, row.CloseAt)
	require.NotNil(t, row.OpenAt)

	// Re-opened: open_at stamps fresh, close_at clears.
	fake.positions[0].PositionAmt = 0.3
	require.NoError(t, reconciler.Execute(ctx, "BTCUSDT"))

	// Scan into a fresh struct: gorm leaves a stale non-nil pointer field
	// untouched when the column is NULL.
	row = model.Position{}
	require.NoError(t, db.Where("symbol_id = ? AND side = ?", symbol.ID, model.SideLong).First(&row).Error)
	assert.Equal(t, model.PositionStatusOpen, row.Status)
	assert.Nil(t, row.CloseAt)
}

func TestCycleCompoundingMonotonicity(t *testing.T) {
	db := newTestDB(t)
	botRow, symbol := seedBotAndSymbol(t, db)
	ctx := context.Background()

	fake := &fakeExchange{exchangeInfo: btcExchangeInfo()}
	reconciler := newTestReconciler(t, db, botRow, fake)

	// First sighting creates the hour bucket with a 10% target.
	require.NoError(t, reconciler.updateCycle(ctx, 1000))

	cycle, err := reconciler.CurrentCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, cycle)
	assert.Equal(t, 1000.0, cycle.CurrentValue)
	assert.InDelta(t, 1100.0, cycle.TargetValue, 0.0001)
	assert.False(t, cycle.Done)

	// Below target: value tracks, no compounding.
	require.NoError(t, reconciler.updateCycle(ctx, 1050))

	var unchanged model.Symbol
	require.NoError(t, db.First(&unchanged, symbol.ID).Error)
	assert.Equal(t, 0.01, unchanged.BaseQuantity)

	// Crossing the target fires compounding exactly once.
	require.NoError(t, reconciler.updateCycle(ctx, 1200))

	var compounded model.Symbol
	require.NoError(t, db.First(&compounded, symbol.ID).Error)
	assert.Equal(t, 0.011, compounded.BaseQuantity)

	cycle, err = reconciler.CurrentCycle(ctx)
	require.NoError(t, err)
	assert.True(t, cycle.Done)

	// Done cycles never fire again, base quantity only ever grows.
	require.NoError(t, reconciler.updateCycle(ctx, 2000))

	require.NoError(t, db.First(&compounded, symbol.ID).Error)
	assert.Equal(t, 0.011, compounded.BaseQuantity)

	cycle, err = reconciler.CurrentCycle(ctx)
	require.NoError(t, err)
	assert.True(t, cycle.Done)
	assert.Equal(t, 1200.0, cycle.CurrentValue)
}
