package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one archived OHLCV bar, written by the history backfill command.
// Upserts key on (datetime, symbol).
type Candle struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Datetime time.Time       `gorm:"not null;index:idx_datetime_symbol,unique" json:"datetime"`
	Symbol   string          `gorm:"size:30;not null;index:idx_datetime_symbol,unique" json:"symbol"`
	Interval string          `gorm:"size:5;not null" json:"interval"`
	Open     decimal.Decimal `gorm:"type:decimal(30,10)" json:"open"`
	High     decimal.Decimal `gorm:"type:decimal(30,10)" json:"high"`
	Low      decimal.Decimal `gorm:"type:decimal(30,10)" json:"low"`
	Close    decimal.Decimal `gorm:"type:decimal(30,10)" json:"close"`
	Volume   decimal.Decimal `gorm:"type:decimal(30,10)" json:"volume"`
}

// TableName allows you to control the exact table name for candles.
func (Candle) TableName() string {
	return "ohlcv_candles"
}
