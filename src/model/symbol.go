package model

import "time"

const (
	SymbolStatusActive   = "active"
	SymbolStatusInactive = "inactive"

	SideLong  = "LONG"
	SideShort = "SHORT"
	SideBoth  = "BOTH"
)

// Symbol is one tradable pair under a bot. BaseQuantity and MinQuantity are
// mutated by the core: the position reconciler raises MinQuantity when the
// exchange lot rules demand a larger minimum notional, and the account value
// cycle raises BaseQuantity when a compounding target is reached.
type Symbol struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	BotID              uint      `gorm:"not null;index:idx_bot_pair,unique" json:"bot_id"`
	Pair               string    `gorm:"size:30;not null;index:idx_bot_pair,unique" json:"pair"`
	Leverage           int       `gorm:"not null;default:1" json:"leverage"`
	Side               string    `gorm:"size:10;not null;default:BOTH" json:"side"`
	BaseQuantity       float64   `json:"base_quantity"`
	MinQuantity        float64   `json:"min_quantity"`
	MarginLimitPercent float64   `json:"margin_limit_percent"`
	Status             string    `gorm:"size:20;not null;default:active" json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for symbols.
func (Symbol) TableName() string {
	return "symbols"
}

// AllowsSide reports whether the configured side restriction admits trading
// on the given position side.
func (s *Symbol) AllowsSide(side string) bool {
	return s.Side == SideBoth || s.Side == side
}
