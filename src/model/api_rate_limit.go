package model

import "time"

const (
	RateLimitTypeHosting = "hosting"
	RateLimitTypeProxy   = "proxy"

	RateLimitStatusActive   = "active"
	RateLimitStatusInactive = "inactive"
)

// APIRateLimit is one request/order budget row for an outbound IP. The
// exchange manager picks an active row (the hosting IP first, then proxies)
// and the connector reports consumed quota back into it.
type APIRateLimit struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	IP                   string     `gorm:"size:45;index" json:"ip"`
	Country              string     `gorm:"size:5" json:"country"`
	Type                 string     `gorm:"size:10;not null" json:"type"`
	Exchange             string     `gorm:"size:50;not null" json:"exchange"`
	RequestCount         int        `json:"request_count"`
	RequestLastTime      *time.Time `json:"request_last_time,omitempty"`
	RequestRateLimit     int        `json:"request_rate_limit"`
	RequestResetInterval int        `json:"request_reset_interval"`
	RequestStatus        string     `gorm:"size:20;not null;default:active" json:"request_status"`
	OrderCount           int        `json:"order_count"`
	OrderLastTime        *time.Time `json:"order_last_time,omitempty"`
	OrderRateLimit       int        `json:"order_rate_limit"`
	OrderResetInterval   int        `json:"order_reset_interval"`
	OrderStatus          string     `gorm:"size:20;not null;default:active" json:"order_status"`
	Status               string     `gorm:"size:20;not null;default:active" json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName allows you to control the exact table name for rate limit rows.
func (APIRateLimit) TableName() string {
	return "api_rate_limit"
}
