package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fjr-software/flinkbot-bot/src/database"
	"github.com/fjr-software/flinkbot-bot/src/model"
)

// BotLogRepository appends bot log records. The log sink is best effort;
// callers must never let a failed insert abort a tick.
type BotLogRepository struct {
	db *gorm.DB
}

// NewBotLogRepository creates a new repository instance using the main database.
func NewBotLogRepository() *BotLogRepository {
	return &BotLogRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *BotLogRepository) WithDB(db *gorm.DB) *BotLogRepository {
	return &BotLogRepository{db: db}
}

// Create appends one log record.
func (r *BotLogRepository) Create(ctx context.Context, entry *model.BotLog) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "BotLogRepository",
			"op":     "Create",
			"bot_id": entry.BotID,
			"level":  entry.Level,
		}).WithError(err).Error("Failed to append bot log")

		return err
	}

	return nil
}

// FindLatest returns the newest records for a bot, newest first.
func (r *BotLogRepository) FindLatest(ctx context.Context, botID uint, limit int) ([]model.BotLog, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []model.BotLog

	err := r.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "BotLogRepository",
			"op":     "FindLatest",
			"bot_id": botID,
		}).WithError(err).Error("Failed to fetch bot logs")

		return nil, err
	}

	return entries, nil
}

// FindSince returns records newer than afterID, oldest first. Used by the
// log stream to tail a bot's records incrementally.
func (r *BotLogRepository) FindSince(ctx context.Context, botID uint, afterID uint, limit int) ([]model.BotLog, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []model.BotLog

	err := r.db.WithContext(ctx).
		Where("bot_id = ? AND id > ?", botID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "BotLogRepository",
			"op":     "FindSince",
			"bot_id": botID,
		}).WithError(err).Error("Failed to fetch bot logs")

		return nil, err
	}

	return entries, nil
}
