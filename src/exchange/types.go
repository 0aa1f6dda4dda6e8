package exchange

const (
	FilterTypeMinNotional = "MIN_NOTIONAL"
	FilterTypeLotSize     = "LOT_SIZE"

	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

// Candle is one OHLCV bar, oldest first in every series returned by
// GetCandles.
type Candle struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// BookLevel is one price level of the order book.
type BookLevel struct {
	Price    float64
	Quantity float64
}

// Book is a depth snapshot. Bids are sorted best (highest) first, asks best
// (lowest) first.
type Book struct {
	Bids []BookLevel
	Asks []BookLevel
}

// BestBid returns the top bid price, 0 when the book side is empty.
func (b *Book) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price, 0 when the book side is empty.
func (b *Book) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// AccountInformation is the futures account summary.
type AccountInformation struct {
	TotalWalletBalance    float64
	TotalMarginBalance    float64
	TotalMaintMargin      float64
	TotalUnrealizedProfit float64
}

// PositionRisk is one hedge-mode position row as reported by the exchange.
type PositionRisk struct {
	Symbol           string
	PositionSide     string
	PositionAmt      float64
	EntryPrice       float64
	BreakEvenPrice   float64
	MarkPrice        float64
	LiquidationPrice float64
	Leverage         int
	MarginType       string
	Notional         float64
	UnrealizedProfit float64
}

// Order is one exchange order snapshot.
type Order struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          string
	PositionSide  string
	Type          string
	OrigType      string
	Status        string
	Price         float64
	StopPrice     float64
	OrigQty       float64
	ExecutedQty   float64
	AvgPrice      float64
	ReduceOnly    bool
	ClosePosition bool
	TimeInForce   string
	Time          int64
	UpdateTime    int64
}

// OrderSpec describes an order to be placed.
type OrderSpec struct {
	Symbol        string
	Side          string
	PositionSide  string
	Type          string
	Quantity      float64
	Price         float64
	StopPrice     float64
	ClosePosition bool
	ReduceOnly    bool
	TimeInForce   string
	ClientOrderID string
}

// RealizedPnl is the PnL breakdown of one filled order.
type RealizedPnl struct {
	Close      float64
	Commission float64
	Realized   float64
}

// Filter is one symbol trading rule.
type Filter struct {
	FilterType  string
	Notional    float64
	StepSize    float64
	MinQuantity float64
	TickSize    float64
}

// SymbolInfo is the per-pair precision and filter metadata.
type SymbolInfo struct {
	Symbol            string
	PricePrecision    int
	QuantityPrecision int
	Filters           []Filter
}

// Filter returns the named filter, nil when the exchange does not publish it.
func (s *SymbolInfo) Filter(filterType string) *Filter {
	for i := range s.Filters {
		if s.Filters[i].FilterType == filterType {
			return &s.Filters[i]
		}
	}
	return nil
}

// ExchangeInfo is the full exchange metadata snapshot.
type ExchangeInfo struct {
	Symbols []SymbolInfo
}

// Symbol returns the metadata for one pair, nil when unknown.
func (e *ExchangeInfo) Symbol(symbol string) *SymbolInfo {
	for i := range e.Symbols {
		if e.Symbols[i].Symbol == symbol {
			return &e.Symbols[i]
		}
	}
	return nil
}

// Ticker is a 24h statistics snapshot.
type Ticker struct {
	LastPrice float64
	HighPrice float64
	LowPrice  float64
}
