package account

import (
	"strconv"

	"github.com/fjr-software/flinkbot-bot/src/exchange"
)

// fakeExchange serves canned data and records placed orders.
type fakeExchange struct {
	accountInfo  exchange.AccountInformation
	positions    []exchange.PositionRisk
	exchangeInfo exchange.ExchangeInfo
	ticker       exchange.Ticker
	candles      []exchange.Candle
	book         exchange.Book
	openOrders   []exchange.Order

	created  []exchange.OrderSpec
	canceled []string

	nextOrderID int64
}

func (f *fakeExchange) GetCandles(symbol, interval string, limit int) ([]exchange.Candle, error) {
	return f.candles, nil
}

func (f *fakeExchange) GetBook(symbol string) (*exchange.Book, error) {
	return &f.book, nil
}

func (f *fakeExchange) GetAccountInformation() (*exchange.AccountInformation, error) {
	info := f.accountInfo
	return &info, nil
}

func (f *fakeExchange) GetPosition(symbol string) ([]exchange.PositionRisk, error) {
	return f.positions, nil
}

func (f *fakeExchange) GetOpenOrders(symbol string) ([]exchange.Order, error) {
	return f.openOrders, nil
}

func (f *fakeExchange) GetOrderByID(symbol, orderID string) (*exchange.Order, error) {
	return nil, nil
}

func (f *fakeExchange) GetRealizedPnl(symbol, orderID string) (*exchange.RealizedPnl, error) {
	return &exchange.RealizedPnl{}, nil
}

func (f *fakeExchange) CreateOrder(spec exchange.OrderSpec) (*exchange.Order, error) {
	f.created = append(f.created, spec)
	f.nextOrderID++

	return &exchange.Order{
		OrderID:      strconv.FormatInt(f.nextOrderID, 10),
		Symbol:       spec.Symbol,
		Side:         spec.Side,
		PositionSide: spec.PositionSide,
		Type:         spec.Type,
		OrigType:     spec.Type,
		Status:       "NEW",
		Price:        spec.Price,
		StopPrice:    spec.StopPrice,
		OrigQty:      spec.Quantity,
		TimeInForce:  spec.TimeInForce,
	}, nil
}

func (f *fakeExchange) CancelOrder(symbol, orderID string) error {
	f.canceled = append(f.canceled, orderID)
	return nil
}

func (f *fakeExchange) ClosePosition(symbol, positionSide string, price float64, stop bool, quantity float64) (*exchange.Order, error) {
	side := exchange.OrderSideSell
	if positionSide == "SHORT" {
		side = exchange.OrderSideBuy
	}

	orderType := "TAKE_PROFIT_MARKET"
	if stop {
		orderType = "STOP_MARKET"
	}

	spec := exchange.OrderSpec{
		Symbol:       symbol,
		Side:         side,
		PositionSide: positionSide,
		Type:         orderType,
		StopPrice:    price,
	}
	if quantity > 0 {
		spec.Quantity = quantity
		spec.ReduceOnly = true
	} else {
		spec.ClosePosition = true
	}

	return f.CreateOrder(spec)
}

func (f *fakeExchange) GetExchangeInfo() (*exchange.ExchangeInfo, error) {
	info := f.exchangeInfo
	return &info, nil
}

func (f *fakeExchange) GetStaticsTicker(symbol string) (*exchange.Ticker, error) {
	ticker := f.ticker
	return &ticker, nil
}
