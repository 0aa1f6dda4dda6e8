package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fjr-software/flinkbot-bot/src/database"
	"github.com/fjr-software/flinkbot-bot/src/model"
)

// BotRepository handles read operations for bots. Bots are created and
// mutated outside of this process, so there are no write methods here.
type BotRepository struct {
	db *gorm.DB
}

// NewBotRepository creates a new repository instance using the main database.
func NewBotRepository() *BotRepository {
	return &BotRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *BotRepository) WithDB(db *gorm.DB) *BotRepository {
	return &BotRepository{db: db}
}

// FindByID fetches a single bot by its primary ID.
// Returns (nil, nil) if the bot is not found.
func (r *BotRepository) FindByID(ctx context.Context, id uint) (*model.Bot, error) {
	var bot model.Bot

	err := r.db.WithContext(ctx).First(&bot, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":   "BotRepository",
				"op":     "FindByID",
				"bot_id": id,
			}).Info("Bot not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "BotRepository",
			"op":     "FindByID",
			"bot_id": id,
		}).WithError(err).Error("Failed to fetch bot")

		return nil, err
	}

	return &bot, nil
}

// FindActive returns every active bot with its active symbols preloaded.
// The supervisor uses this to build its (bot, symbol) worker set.
func (r *BotRepository) FindActive(ctx context.Context) ([]model.Bot, error) {
	var bots []model.Bot

	err := r.db.WithContext(ctx).
		Preload("Symbols", "status = ?", model.SymbolStatusActive).
		Where("status = ?", model.BotStatusActive).
		Order("id ASC").
		Find(&bots).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "BotRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active bots")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "BotRepository",
		"op":          "FindActive",
		"rows_return": len(bots),
	}).Debug("Active bots fetched")

	return bots, nil
}
