package model

import "time"

const (
	LogLevelInfo    = "INFO"
	LogLevelWarning = "WARNING"
	LogLevelError   = "ERROR"
	LogLevelDebug   = "DEBUG"
)

// BotLog is one append-only log record for a bot.
type BotLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BotID     uint      `gorm:"index" json:"bot_id"`
	Level     string    `gorm:"size:10;not null" json:"level"`
	Message   string    `gorm:"type:text" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for bot logs.
func (BotLog) TableName() string {
	return "bot_logs"
}
