package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fjr-software/flinkbot-bot/src/database"
	"github.com/fjr-software/flinkbot-bot/src/model"
)

// SymbolRepository handles read/write operations for symbols. The core only
// ever mutates min_quantity (lot-rule corrections) and base_quantity
// (account-cycle compounding).
type SymbolRepository struct {
	db *gorm.DB
}

// NewSymbolRepository creates a new repository instance using the main database.
func NewSymbolRepository() *SymbolRepository {
	return &SymbolRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SymbolRepository) WithDB(db *gorm.DB) *SymbolRepository {
	return &SymbolRepository{db: db}
}

// FindByBotAndPair fetches one symbol row by bot and pair name.
// Returns (nil, nil) if the symbol is not found.
func (r *SymbolRepository) FindByBotAndPair(ctx context.Context, botID uint, pair string) (*model.Symbol, error) {
	var symbol model.Symbol

	err := r.db.WithContext(ctx).
		Where("bot_id = ? AND pair = ?", botID, pair).
		First(&symbol).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":   "SymbolRepository",
				"op":     "FindByBotAndPair",
				"bot_id": botID,
				"pair":   pair,
			}).Info("Symbol not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "SymbolRepository",
			"op":     "FindByBotAndPair",
			"bot_id": botID,
			"pair":   pair,
		}).WithError(err).Error("Failed to fetch symbol")

		return nil, err
	}

	return &symbol, nil
}

// FindActiveByBot returns every active symbol configured under a bot.
func (r *SymbolRepository) FindActiveByBot(ctx context.Context, botID uint) ([]model.Symbol, error) {
	var symbols []model.Symbol

	err := r.db.WithContext(ctx).
		Where("bot_id = ? AND status = ?", botID, model.SymbolStatusActive).
		Order("id ASC").
		Find(&symbols).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SymbolRepository",
			"op":     "FindActiveByBot",
			"bot_id": botID,
		}).WithError(err).Error("Failed to fetch active symbols")

		return nil, err
	}

	return symbols, nil
}

// UpdateMinQuantity raises or lowers the stored exchange minimum for a pair.
func (r *SymbolRepository) UpdateMinQuantity(ctx context.Context, botID uint, pair string, minQuantity float64) error {
	err := r.db.WithContext(ctx).
		Model(&model.Symbol{}).
		Where("bot_id = ? AND pair = ?", botID, pair).
		Update("min_quantity", minQuantity).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "SymbolRepository",
			"op":           "UpdateMinQuantity",
			"bot_id":       botID,
			"pair":         pair,
			"min_quantity": minQuantity,
		}).WithError(err).Error("Failed to update symbol min quantity")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "SymbolRepository",
		"op":           "UpdateMinQuantity",
		"bot_id":       botID,
		"pair":         pair,
		"min_quantity": minQuantity,
	}).Info("Symbol min quantity updated")

	return nil
}

// UpdateBaseQuantity stores a compounded base order quantity for a symbol.
func (r *SymbolRepository) UpdateBaseQuantity(ctx context.Context, symbolID uint, baseQuantity float64) error {
	err := r.db.WithContext(ctx).
		Model(&model.Symbol{}).
		Where("id = ?", symbolID).
		Update("base_quantity", baseQuantity).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":          "SymbolRepository",
			"op":            "UpdateBaseQuantity",
			"symbol_id":     symbolID,
			"base_quantity": baseQuantity,
		}).WithError(err).Error("Failed to update symbol base quantity")

		return err
	}

	return nil
}
