package model

import "time"

const (
	BotStatusActive   = "active"
	BotStatusInactive = "inactive"
)

// Bot represents one trading account configuration. The core only reads
// bots; creation and edits happen outside of this process.
type Bot struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"index" json:"user_id"`
	Name   string `gorm:"size:255;not null" json:"name"`
	// Exchange holds the exchange identifier, e.g. "binance".
	Exchange string `gorm:"size:50;not null" json:"exchange"`
	// APIKeyHash and APISecretHash store AES-encrypted credentials.
	APIKeyHash    string `gorm:"column:api_key;type:text" json:"-"`
	APISecretHash string `gorm:"column:api_secret;type:text" json:"-"`
	Status        string `gorm:"size:20;not null;default:inactive" json:"status"`
	State         string `gorm:"size:20" json:"state"`
	// Config is the JSON strategy blob parsed by account.BotConfig.
	Config      string    `gorm:"type:text" json:"config"`
	Debug       bool      `gorm:"not null;default:false" json:"debug"`
	Description string    `gorm:"size:512" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Symbols []Symbol `gorm:"foreignKey:BotID" json:"symbols,omitempty"`
}

// TableName allows you to control the exact table name for bots.
func (Bot) TableName() string {
	return "bots"
}
