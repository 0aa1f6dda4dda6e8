package model

import "time"

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"

	MarginTypeCrossed  = "CROSSED"
	MarginTypeIsolated = "ISOLATED"
)

// Position mirrors the exchange position for one (user, symbol, side).
// Hedge mode: LONG and SHORT rows are independent and at most one open row
// exists per side.
type Position struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;index:idx_user_symbol_side,unique" json:"user_id"`
	SymbolID             uint       `gorm:"not null;index:idx_user_symbol_side,unique" json:"symbol_id"`
	Side                 string     `gorm:"size:10;not null;index:idx_user_symbol_side,unique" json:"side"`
	Leverage             int        `json:"leverage"`
	EntryPrice           float64    `json:"entry_price"`
	BreakEvenPrice       float64    `json:"break_even_price"`
	Size                 float64    `json:"size"`
	PnlRoiPercent        float64    `json:"pnl_roi_percent"`
	PnlRoiValue          float64    `json:"pnl_roi_value"`
	PnlAccountPercent    float64    `json:"pnl_account_percent"`
	MarginAccountPercent float64    `json:"margin_account_percent"`
	MarginSymbolPercent  float64    `json:"margin_symbol_percent"`
	MarkPrice            float64    `json:"mark_price"`
	LiquidPrice          float64    `json:"liquid_price"`
	MarginType           string     `gorm:"size:10" json:"margin_type"`
	Status               string     `gorm:"size:10;not null;default:closed" json:"status"`
	OpenAt               *time.Time `json:"open_at,omitempty"`
	CloseAt              *time.Time `json:"close_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`

	Symbol *Symbol `gorm:"foreignKey:SymbolID" json:"symbol,omitempty"`
}

// TableName allows you to control the exact table name for positions.
func (Position) TableName() string {
	return "positions"
}
