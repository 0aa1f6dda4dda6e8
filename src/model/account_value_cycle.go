package model

import "time"

// AccountValueCycle is an hourly compounding checkpoint. Once Done is set it
// is never cleared; reaching TargetValue scales every active symbol's base
// quantity exactly once for that period.
type AccountValueCycle struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	BotID        uint      `gorm:"not null;index:idx_bot_period,unique" json:"bot_id"`
	Period       time.Time `gorm:"not null;index:idx_bot_period,unique" json:"period"`
	CurrentValue float64   `json:"current_value"`
	TargetValue  float64   `json:"target_value"`
	Done         bool      `gorm:"not null;default:false" json:"done"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for cycles.
func (AccountValueCycle) TableName() string {
	return "account_value_cycle"
}
