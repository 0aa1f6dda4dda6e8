package model

import "time"

const (
	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusExpired         = "EXPIRED"

	OrderTypeLimit      = "LIMIT"
	OrderTypeTakeProfit = "TAKE_PROFIT_MARKET"
	OrderTypeStopMarket = "STOP_MARKET"

	TimeInForceGTC = "GTC"
)

// Order is one exchange order, upserted by exchange order id. Rows are never
// deleted by the core; the realized PnL breakdown is filled in once the
// order trades.
type Order struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"index" json:"user_id"`
	SymbolID      uint      `gorm:"index" json:"symbol_id"`
	OrderID       string    `gorm:"size:50;not null;uniqueIndex" json:"order_id"`
	ClientOrderID string    `gorm:"size:60" json:"client_order_id"`
	Side          string    `gorm:"size:10" json:"side"`
	PositionSide  string    `gorm:"size:10" json:"position_side"`
	Type          string    `gorm:"size:30" json:"type"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	StopPrice     *float64  `json:"stop_price,omitempty"`
	ClosePosition bool      `gorm:"not null;default:false" json:"close_position"`
	TimeInForce   string    `gorm:"size:10" json:"time_in_force"`
	Status        string    `gorm:"size:30;not null;default:NEW" json:"status"`
	PnlClose      *float64  `json:"pnl_close,omitempty"`
	PnlCommission *float64  `json:"pnl_commission,omitempty"`
	PnlRealized   *float64  `json:"pnl_realized,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsOpenStatus reports whether the order is still working on the exchange.
func IsOpenStatus(status string) bool {
	return status == OrderStatusNew || status == OrderStatusPartiallyFilled
}
