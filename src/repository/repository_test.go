package repository

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
	"github.com/fjr-software/flinkbot-bot/src/model"
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

func ptrFloat(v float64) *float64 { return &v }

func TestOrderUpdateOrCreateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := (&OrderRepository{}).WithDB(db)
	ctx := context.Background()

	order := &model.Order{
		UserID:       1,
		SymbolID:     1,
		OrderID:      "900001",
		Side:         "BUY",
		PositionSide: model.SideLong,
		Type:         model.OrderTypeLimit,
		Quantity:     0.5,
		Price:        25000,
		TimeInForce:  model.TimeInForceGTC,
		Status:       model.OrderStatusNew,
	}

	require.NoError(t, repo.UpdateOrCreate(ctx, order))

	// Same exchange order comes back later with a terminal status.
	update := &model.Order{
		UserID:       1,
		SymbolID:     1,
		OrderID:      "900001",
		Side:         "BUY",
		PositionSide: model.SideLong,
		Type:         model.OrderTypeLimit,
		Quantity:     0.5,
		Price:        25000,
		TimeInForce:  model.TimeInForceGTC,
		Status:       model.OrderStatusFilled,
		PnlRealized:  ptrFloat(12.5),
	}
	require.NoError(t, repo.UpdateOrCreate(ctx, update))

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Where("order_id = ?", "900001").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var stored model.Order
	require.NoError(t, db.Where("order_id = ?", "900001").First(&stored).Error)
	assert.Equal(t, model.OrderStatusFilled, stored.Status)
	require.NotNil(t, stored.PnlRealized)
	assert.Equal(t, 12.5, *stored.PnlRealized)
}

func TestOrderFindUnsettledSkipsTerminalStatuses(t *testing.T) {
	db := newTestDB(t)
	repo := (&OrderRepository{}).WithDB(db)
	ctx := context.Background()

	seed := []model.Order{
		{UserID: 1, SymbolID: 1, OrderID: "1", Side: "BUY", PositionSide: model.SideLong, Type: model.OrderTypeLimit, Status: model.OrderStatusNew},
		{UserID: 1, SymbolID: 1, OrderID: "2", Side: "BUY", PositionSide: model.SideLong, Type: model.OrderTypeLimit, Status: model.OrderStatusPartiallyFilled},
		{UserID: 1, SymbolID: 1, OrderID: "3", Side: "BUY", PositionSide: model.SideLong, Type: model.OrderTypeLimit, Status: model.OrderStatusFilled},
		{UserID: 1, SymbolID: 1, OrderID: "4", Side: "SELL", PositionSide: model.SideLong, Type: model.OrderTypeStopMarket, Status: model.OrderStatusCanceled},
		{UserID: 1, SymbolID: 2, OrderID: "5", Side: "BUY", PositionSide: model.SideLong, Type: model.OrderTypeLimit, Status: model.OrderStatusNew},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	orders, err := repo.FindUnsettled(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, order := range orders {
		assert.True(t, model.IsOpenStatus(order.Status))
	}
}

func TestOrderFindLastEntryReturnsNilWhenEmpty(t *testing.T) {
	db := newTestDB(t)
	repo := (&OrderRepository{}).WithDB(db)

	order, err := repo.FindLastEntry(context.Background(), 1, 1, model.SideLong)
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestOrderAvgFilledPrice(t *testing.T) {
	db := newTestDB(t)
	repo := (&OrderRepository{}).WithDB(db)
	ctx := context.Background()

	now := time.Now()
	seed := []model.Order{
		{UserID: 1, SymbolID: 1, OrderID: "10", Side: "BUY", PositionSide: model.SideLong, Type: model.OrderTypeLimit, Status: model.OrderStatusFilled, Price: 100},
		{UserID: 1, SymbolID: 1, OrderID: "11", Side: "BUY", PositionSide: model.SideLong, Type: model.OrderTypeLimit, Status: model.OrderStatusFilled, Price: 200},
		// Canceled orders never count toward the average.
		{UserID: 1, SymbolID: 1, OrderID: "12", Side: "BUY", PositionSide: model.SideLong, Type: model.OrderTypeLimit, Status: model.OrderStatusCanceled, Price: 900},
		{UserID: 1, SymbolID: 1, OrderID: "13", Side: "SELL", PositionSide: model.SideShort, Type: model.OrderTypeLimit, Status: model.OrderStatusFilled, Price: 900},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	avg, err := repo.AvgFilledPrice(ctx, 1, 1, model.SideLong, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.InDelta(t, 150.0, avg, 0.001)

	avg, err = repo.AvgFilledPrice(ctx, 1, 1, model.SideShort, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, avg)

	avg, err = repo.AvgFilledPrice(ctx, 1, 1, model.SideLong, now.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Zero(t, avg)
}

func TestPositionFindByUserSymbolSideNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := (&PositionRepository{}).WithDB(db)

	position, err := repo.FindByUserSymbolSide(context.Background(), 1, 1, model.SideLong)
	require.NoError(t, err)
	assert.Nil(t, position)
}

func TestPositionSaveRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := (&PositionRepository{}).WithDB(db)
	ctx := context.Background()

	position := &model.Position{
		UserID:   1,
		SymbolID: 7,
		Side:     model.SideShort,
		Size:     -0.25,
		Status:   model.PositionStatusOpen,
	}
	require.NoError(t, repo.Save(ctx, position))
	require.NotZero(t, position.ID)

	position.Status = model.PositionStatusClosed
	position.Size = 0
	require.NoError(t, repo.Save(ctx, position))

	stored, err := repo.FindByUserSymbolSide(ctx, 1, 7, model.SideShort)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.PositionStatusClosed, stored.Status)
	assert.Zero(t, stored.Size)
}

func TestSymbolQuantityUpdates(t *testing.T) {
	db := newTestDB(t)
	repo := (&SymbolRepository{}).WithDB(db)
	ctx := context.Background()

	symbol := model.Symbol{
		BotID:        3,
		Pair:         "BTCUSDT",
		Leverage:     10,
		Side:         model.SideBoth,
		BaseQuantity: 0.01,
		MinQuantity:  0.001,
		Status:       model.SymbolStatusActive,
	}
	require.NoError(t, db.Create(&symbol).Error)

	require.NoError(t, repo.UpdateMinQuantity(ctx, 3, "BTCUSDT", 0.002))
	require.NoError(t, repo.UpdateBaseQuantity(ctx, symbol.ID, 0.011))

	stored, err := repo.FindByBotAndPair(ctx, 3, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 0.002, stored.MinQuantity)
	assert.Equal(t, 0.011, stored.BaseQuantity)

	missing, err := repo.FindByBotAndPair(ctx, 3, "ETHUSDT")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCycleLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := (&CycleRepository{}).WithDB(db)
	ctx := context.Background()

	period := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)

	missing, err := repo.FindByBotAndPeriod(ctx, 9, period)
	require.NoError(t, err)
	assert.Nil(t, missing)

	cycle := &model.AccountValueCycle{
		BotID:        9,
		Period:       period,
		CurrentValue: 1000,
		TargetValue:  1100,
	}
	require.NoError(t, repo.Create(ctx, cycle))

	cycle.Done = true
	require.NoError(t, repo.Save(ctx, cycle))

	stored, err := repo.FindByBotAndPeriod(ctx, 9, period)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Done)
	assert.Equal(t, 1100.0, stored.TargetValue)
}

func TestBotFindActivePreloadsActiveSymbols(t *testing.T) {
	db := newTestDB(t)
	repo := (&BotRepository{}).WithDB(db)
	ctx := context.Background()

	bot := model.Bot{UserID: 1, Name: "alpha", Exchange: "BINANCE", Status: model.BotStatusActive}
	require.NoError(t, db.Create(&bot).Error)

	inactive := model.Bot{UserID: 1, Name: "beta", Exchange: "BINANCE", Status: model.BotStatusInactive}
	require.NoError(t, db.Create(&inactive).Error)

	symbols := []model.Symbol{
		{BotID: bot.ID, Pair: "BTCUSDT", Leverage: 5, Side: model.SideBoth, Status: model.SymbolStatusActive},
		{BotID: bot.ID, Pair: "ETHUSDT", Leverage: 5, Side: model.SideLong, Status: model.SymbolStatusInactive},
	}
	for i := range symbols {
		require.NoError(t, db.Create(&symbols[i]).Error)
	}

	bots, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	require.Len(t, bots[0].Symbols, 1)
	assert.Equal(t, "BTCUSDT", bots[0].Symbols[0].Pair)
}

func TestRateLimitSelectionAndUsage(t *testing.T) {
	db := newTestDB(t)
	repo := (&RateLimitRepository{}).WithDB(db)
	ctx := context.Background()

	rows := []model.APIRateLimit{
		{Type: model.RateLimitTypeHosting, Exchange: "BINANCE", IP: "10.0.0.1", Status: model.RateLimitStatusActive},
		{Type: model.RateLimitTypeProxy, Exchange: "BINANCE", IP: "10.0.0.2", Status: model.RateLimitStatusActive},
		{Type: model.RateLimitTypeProxy, Exchange: "BINANCE", IP: "10.0.0.3", Status: model.RateLimitStatusInactive},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	hosting, err := repo.FindHosting(ctx, "BINANCE", "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, hosting)
	assert.Equal(t, "10.0.0.1", hosting.IP)

	none, err := repo.FindHosting(ctx, "BINANCE", "192.168.0.1")
	require.NoError(t, err)
	assert.Nil(t, none)

	proxies, err := repo.FindActiveProxies(ctx, "BINANCE")
	require.NoError(t, err)
	require.Len(t, proxies, 1)
	assert.Equal(t, "10.0.0.2", proxies[0].IP)

	require.NoError(t, repo.UpdateUsage(ctx, hosting.ID, 42, 7))

	var stored model.APIRateLimit
	require.NoError(t, db.First(&stored, hosting.ID).Error)
	assert.Equal(t, 42, stored.RequestCount)
	assert.Equal(t, 7, stored.OrderCount)
	assert.NotNil(t, stored.RequestLastTime)
}

func TestBotLogCreateAndFindLatest(t *testing.T) {
	db := newTestDB(t)
	repo := (&BotLogRepository{}).WithDB(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &model.BotLog{
			BotID:   4,
			Level:   model.LogLevelInfo,
			Message: "tick",
		}))
	}

	entries, err := repo.FindLatest(ctx, 4, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
