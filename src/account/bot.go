package account

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"github.com/fjr-software/flinkbot-bot/src/exchange"
	"github.com/fjr-software/flinkbot-bot/src/model"
	"github.com/fjr-software/flinkbot-bot/src/repository"
	"github.com/fjr-software/flinkbot-bot/src/security"
)

// Bot binds one bot row to its parsed strategy config and a ready exchange
// connector.
type Bot struct {
	row      *model.Bot
	config   *BotConfig
	exchange exchange.Exchange
}

// LoadBot fetches the bot row, decrypts its credentials and builds the
// exchange connector through the manager.
func LoadBot(ctx context.Context, botID uint) (*Bot, error) {
	row, err := repository.NewBotRepository().FindByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("account: bot %d not found", botID)
	}

	config, err := NewBotConfig(row.Config)
	if err != nil {
		return nil, err
	}

	option, err := exchange.ParseOption(row.Exchange)
	if err != nil {
		return nil, err
	}

	credentialsKey := security.GetConfig().ExchangeCRKey

	apiKey, err := security.Decrypt(row.APIKeyHash, credentialsKey)
	if err != nil {
		return nil, fmt.Errorf("account: decrypt api key: %w", err)
	}

	apiSecret, err := security.Decrypt(row.APISecretHash, credentialsKey)
	if err != nil {
		return nil, fmt.Errorf("account: decrypt api secret: %w", err)
	}

	manager, err := exchange.NewManager(option, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"bot_id":   row.ID,
		"exchange": option.String(),
	}).Info("Bot loaded")

	return &Bot{row: row, config: config, exchange: manager.GetExchange()}, nil
}

// NewBot wires a bot from preloaded parts. Tests and tools use this to avoid
// the credential and connector bootstrap.
func NewBot(row *model.Bot, config *BotConfig, exch exchange.Exchange) *Bot {
	return &Bot{row: row, config: config, exchange: exch}
}

// ID returns the bot row id.
func (b *Bot) ID() uint { return b.row.ID }

// UserID returns the owning user id.
func (b *Bot) UserID() uint { return b.row.UserID }

// Name returns the bot display name.
func (b *Bot) Name() string { return b.row.Name }

// Debug reports whether verbose tick logging is enabled.
func (b *Bot) Debug() bool { return b.row.Debug }

// Config returns the parsed strategy configuration.
func (b *Bot) Config() *BotConfig { return b.config }

// Exchange returns the connector.
func (b *Bot) Exchange() exchange.Exchange { return b.exchange }
