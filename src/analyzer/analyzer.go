package analyzer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/fjr-software/flinkbot-bot/src/account"
	"github.com/fjr-software/flinkbot-bot/src/exchange"
	"github.com/fjr-software/flinkbot-bot/src/model"
	"github.com/fjr-software/flinkbot-bot/src/repository"
)

// Worker exit codes. The supervisor decides retry/stop from these.
const (
	ResultDefault       = 0
	ResultSuccess       = 1
	ResultRestart       = 2
	ResultClosed        = 3
	ResultTimeout       = 4
	ResultClosedTimeout = 5
)

// StopSentinel is the token a supervisor writes on the worker's stdin to
// request a cooperative stop.
const StopSentinel = "@STOP"

const (
	candleLimit           = 100
	closeRetryAttempts    = 2
	driftTolerancePercent = 10.0
)

// Analyzer runs one trading tick for a (bot, symbol) pair: reconcile state,
// resolve the indicator side, manage exits and order hygiene, then place an
// entry when every gate passes.
type Analyzer struct {
	bot        *account.Bot
	reconciler *account.Reconciler
	log        *account.Log
	symbols    *repository.SymbolRepository
	orders     *repository.OrderRepository

	exchangeInfo *exchange.ExchangeInfo

	exitCode atomic.Int32
	now      func() time.Time
}

// New loads the bot and wires a ready analyzer.
func New(ctx context.Context, botID uint) (*Analyzer, error) {
	bot, err := account.LoadBot(ctx, botID)
	if err != nil {
		return nil, err
	}

	return NewWithBot(bot), nil
}

// NewWithBot wires an analyzer from a preloaded bot.
func NewWithBot(bot *account.Bot) *Analyzer {
	a := &Analyzer{
		bot:        bot,
		reconciler: account.NewReconciler(bot),
		log:        account.NewLog(bot.ID()),
		symbols:    repository.NewSymbolRepository(),
		orders:     repository.NewOrderRepository(),
		now:        time.Now,
	}
	a.exitCode.Store(ResultRestart)

	return a
}

// WithReconciler overrides the position reconciler.
func (a *Analyzer) WithReconciler(reconciler *account.Reconciler) *Analyzer {
	a.reconciler = reconciler
	return a
}

// WithRepositories overrides the backing repositories.
func (a *Analyzer) WithRepositories(symbols *repository.SymbolRepository, orders *repository.OrderRepository) *Analyzer {
	a.symbols = symbols
	a.orders = orders
	return a
}

// WithLog overrides the bot log sink.
func (a *Analyzer) WithLog(log *account.Log) *Analyzer {
	a.log = log
	return a
}

// WatchStop reads the input stream and flips the exit code to SUCCESS when
// the stop sentinel arrives. The stop is cooperative, a tick already running
// completes before the code is honored.
func (a *Analyzer) WatchStop(r io.Reader) {
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if strings.TrimSpace(scanner.Text()) == StopSentinel {
				a.exitCode.Store(ResultSuccess)
			}
		}
	}()
}

// ExitCode returns the code the worker process should terminate with.
func (a *Analyzer) ExitCode() int {
	return int(a.exitCode.Load())
}

// Run executes one tick. A failed tick is logged and demotes the exit code
// so the supervisor's retry counter advances.
func (a *Analyzer) Run(ctx context.Context, symbol string) error {
	started := a.now()

	err := a.runTick(ctx, symbol)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"bot_id": a.bot.ID(),
			"symbol": symbol,
		}).WithError(err).Error("Tick failed")

		a.log.Register(ctx, model.LogLevelError, "Tick failed: "+err.Error())
		a.exitCode.CompareAndSwap(ResultRestart, ResultDefault)

		return err
	}

	logger.WithFields(map[string]interface{}{
		"bot_id":   a.bot.ID(),
		"symbol":   symbol,
		"duration": a.now().Sub(started).String(),
	}).Info("Tick finished")

	return nil
}

// tick carries the state shared by the steps of one run.
type tick struct {
	symbol     string
	symbolRow  *model.Symbol
	symbolInfo *exchange.SymbolInfo
	account    *exchange.AccountInformation
	book       *exchange.Book

	plainOrders  []exchange.Order
	reduceOrders []exchange.Order
	positions    []model.Position

	side        string
	canGainLoss bool

	// targets holds the freshly computed trigger price per position side,
	// used by the drift replacement in order hygiene.
	targets map[string]float64

	hasPosition          map[string]bool
	marginAccountPercent float64
	marginSymbol         map[string]float64
}

func (a *Analyzer) runTick(ctx context.Context, symbol string) error {
	symbolRow, err := a.symbols.FindByBotAndPair(ctx, a.bot.ID(), symbol)
	if err != nil {
		return err
	}
	if symbolRow == nil {
		return fmt.Errorf("analyzer: symbol %s not configured for bot %d", symbol, a.bot.ID())
	}

	if err := a.reconciler.Execute(ctx, symbol); err != nil {
		return err
	}
	if err := a.refreshOrders(ctx, symbolRow); err != nil {
		return err
	}

	exch := a.bot.Exchange()
	config := a.bot.Config()

	candles, err := exch.GetCandles(symbol, config.Interval, candleLimit)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("analyzer: empty candle series for %s", symbol)
	}

	closes := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = candle.Close
	}
	current := closes[len(closes)-1]

	signals, err := config.GetIndicator(closes, current)
	if err != nil {
		return err
	}

	t := &tick{
		symbol:       symbol,
		symbolRow:    symbolRow,
		side:         a.chooseSide(signals),
		targets:      map[string]float64{},
		hasPosition:  map[string]bool{},
		marginSymbol: map[string]float64{},
	}

	a.emit(ctx, a.signalMessage(signals, current, t.side))

	t.symbolInfo, err = a.symbolExchange(symbol)
	if err != nil {
		return err
	}
	if t.symbolInfo == nil {
		return fmt.Errorf("analyzer: symbol %s unknown to the exchange", symbol)
	}

	t.account, err = exch.GetAccountInformation()
	if err != nil {
		return err
	}

	t.book, err = exch.GetBook(symbol)
	if err != nil {
		return err
	}

	openOrders, err := exch.GetOpenOrders(symbol)
	if err != nil {
		return err
	}
	for _, order := range openOrders {
		if order.ReduceOnly || order.ClosePosition {
			t.reduceOrders = append(t.reduceOrders, order)
		} else {
			t.plainOrders = append(t.plainOrders, order)
		}
	}

	t.positions, err = a.reconciler.Get(ctx, symbol)
	if err != nil {
		return err
	}

	if err := a.manageExits(ctx, t); err != nil {
		return err
	}
	if err := a.orderHygiene(ctx, t); err != nil {
		return err
	}

	if t.side != "" && config.TradeCurrentCycle {
		cycle, err := a.reconciler.CurrentCycle(ctx)
		if err != nil {
			return err
		}
		if cycle != nil && cycle.Done {
			a.emit(ctx, fmt.Sprintf("Without %s operation[cycleDone]", t.side))
			t.side = ""
		}
	}

	return a.placeEntry(ctx, t)
}

// refreshOrders pulls the exchange state of every locally unsettled order,
// together with its realized PnL breakdown.
func (a *Analyzer) refreshOrders(ctx context.Context, symbolRow *model.Symbol) error {
	unsettled, err := a.orders.FindUnsettled(ctx, a.bot.UserID(), symbolRow.ID)
	if err != nil {
		return err
	}

	exch := a.bot.Exchange()

	for _, stale := range unsettled {
		fresh, err := exch.GetOrderByID(symbolRow.Pair, stale.OrderID)
		if err != nil {
			if errors.Is(err, exchange.ErrOrderNotFound) {
				continue
			}
			return err
		}
		if fresh == nil {
			continue
		}

		pnl, err := exch.GetRealizedPnl(symbolRow.Pair, stale.OrderID)
		if err != nil {
			return err
		}

		if err := a.persistOrder(ctx, symbolRow, fresh, pnl); err != nil {
			return err
		}
	}

	return nil
}

// chooseSide derives the trade side from the aggregated signals. When both
// sides qualify, the priority setting breaks the tie: an explicit side wins,
// otherwise the side whose designated indicator fired.
func (a *Analyzer) chooseSide(signals *account.Signals) string {
	side := ""
	if signals.LongOK {
		side = model.SideLong
	}
	if signals.ShortOK {
		side = model.SideShort
	}

	if signals.LongOK && signals.ShortOK {
		priority := a.bot.Config().PrioritySideIndicator

		switch strings.ToUpper(priority) {
		case model.SideLong, model.SideShort:
			return strings.ToUpper(priority)
		}

		if signals.Long[priority] {
			side = model.SideLong
		}
		if signals.Short[priority] {
			side = model.SideShort
		}
	}

	return side
}

func (a *Analyzer) signalMessage(signals *account.Signals, current float64, side string) string {
	parts := []string{"Current: " + strconv.FormatFloat(current, 'f', -1, 64)}

	kinds := make([]string, 0, len(signals.Instances))
	for kind := range signals.Instances {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		kindSide := ""
		if signals.Long[kind] {
			kindSide = model.SideLong
		}
		if signals.Short[kind] {
			kindSide = model.SideShort
		}
		parts = append(parts, kind+":"+kindSide)

		if !a.bot.Debug() {
			continue
		}

		for _, instance := range signals.Instances[kind] {
			values := instance.Value()
			formatted := make([]string, len(values))
			for i, value := range values {
				formatted[i] = strconv.FormatFloat(value, 'f', -1, 64)
			}
			parts = append(parts, strings.Join(formatted, " "))
		}
	}

	return strings.Join(parts, " - ") + " - Side: " + side
}

// persistOrder upserts an exchange order snapshot as a local row.
func (a *Analyzer) persistOrder(ctx context.Context, symbolRow *model.Symbol, order *exchange.Order, pnl *exchange.RealizedPnl) error {
	orderType := order.OrigType
	if orderType == "" {
		orderType = order.Type
	}

	row := &model.Order{
		UserID:        a.bot.UserID(),
		SymbolID:      symbolRow.ID,
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		Side:          order.Side,
		PositionSide:  order.PositionSide,
		Type:          orderType,
		Quantity:      order.OrigQty,
		Price:         order.Price,
		ClosePosition: order.ClosePosition,
		TimeInForce:   order.TimeInForce,
		Status:        order.Status,
	}

	if order.StopPrice > 0 {
		stopPrice := order.StopPrice
		row.StopPrice = &stopPrice
	}

	if pnl != nil {
		closeValue, commission, realized := pnl.Close, pnl.Commission, pnl.Realized
		row.PnlClose = &closeValue
		row.PnlCommission = &commission
		row.PnlRealized = &realized
	}

	return a.orders.UpdateOrCreate(ctx, row)
}

// emit writes one progress line to the bot log and to stdout for the
// supervisor to capture.
func (a *Analyzer) emit(ctx context.Context, message string) {
	a.log.Register(ctx, model.LogLevelDebug, message)
	fmt.Println(message)
}

// symbolExchange resolves cached exchange metadata for a pair.
func (a *Analyzer) symbolExchange(symbol string) (*exchange.SymbolInfo, error) {
	if a.exchangeInfo == nil {
		info, err := a.bot.Exchange().GetExchangeInfo()
		if err != nil {
			return nil, err
		}
		a.exchangeInfo = info
	}

	return a.exchangeInfo.Symbol(symbol), nil
}

// intervalDuration converts a candle interval like 15m, 4h or 1d to a
// duration. Unknown values fall back to 15 minutes.
func intervalDuration(interval string) time.Duration {
	if strings.HasSuffix(interval, "d") {
		if days, err := strconv.Atoi(strings.TrimSuffix(interval, "d")); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
	}

	if duration, err := time.ParseDuration(interval); err == nil {
		return duration
	}

	return 15 * time.Minute
}
