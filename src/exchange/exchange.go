package exchange

import "errors"

// ErrImmediateTrigger is returned when a trigger order is rejected because
// its stop price already crosses the book. Callers recompute the price and
// retry a bounded number of times.
var ErrImmediateTrigger = errors.New("exchange: order would immediately trigger")

// ErrOrderNotFound is returned by order lookups for unknown order ids.
var ErrOrderNotFound = errors.New("exchange: order not found")

// Exchange is the capability set the trading core consumes. Implementations
// own authentication, transport retries and quota accounting; callers treat
// every method as a blocking round trip.
type Exchange interface {
	GetCandles(symbol, interval string, limit int) ([]Candle, error)
	GetBook(symbol string) (*Book, error)
	GetAccountInformation() (*AccountInformation, error)
	GetPosition(symbol string) ([]PositionRisk, error)
	GetOpenOrders(symbol string) ([]Order, error)
	GetOrderByID(symbol, orderID string) (*Order, error)
	GetRealizedPnl(symbol, orderID string) (*RealizedPnl, error)
	CreateOrder(spec OrderSpec) (*Order, error)
	CancelOrder(symbol, orderID string) error
	ClosePosition(symbol, positionSide string, price float64, stop bool, quantity float64) (*Order, error)
	GetExchangeInfo() (*ExchangeInfo, error)
	GetStaticsTicker(symbol string) (*Ticker, error)
}
