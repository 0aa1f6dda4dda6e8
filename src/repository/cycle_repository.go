package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fjr-software/flinkbot-bot/src/database"
	"github.com/fjr-software/flinkbot-bot/src/model"
)

// CycleRepository handles read/write operations for account value cycles.
type CycleRepository struct {
	db *gorm.DB
}

// NewCycleRepository creates a new repository instance using the main database.
func NewCycleRepository() *CycleRepository {
	return &CycleRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *CycleRepository) WithDB(db *gorm.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// FindByBotAndPeriod fetches the cycle row for one hour bucket.
// Returns (nil, nil) if the bucket has no row yet.
func (r *CycleRepository) FindByBotAndPeriod(ctx context.Context, botID uint, period time.Time) (*model.AccountValueCycle, error) {
	var cycle model.AccountValueCycle

	err := r.db.WithContext(ctx).
		Where("bot_id = ? AND period = ?", botID, period).
		First(&cycle).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "CycleRepository",
			"op":     "FindByBotAndPeriod",
			"bot_id": botID,
			"period": period,
		}).WithError(err).Error("Failed to fetch account value cycle")

		return nil, err
	}

	return &cycle, nil
}

// Create inserts a new cycle row for an hour bucket.
func (r *CycleRepository) Create(ctx context.Context, cycle *model.AccountValueCycle) error {
	err := r.db.WithContext(ctx).Create(cycle).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "CycleRepository",
			"op":     "Create",
			"bot_id": cycle.BotID,
			"period": cycle.Period,
		}).WithError(err).Error("Failed to create account value cycle")

		return err
	}

	return nil
}

// Save persists changes to an existing cycle row.
func (r *CycleRepository) Save(ctx context.Context, cycle *model.AccountValueCycle) error {
	err := r.db.WithContext(ctx).Save(cycle).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "CycleRepository",
			"op":     "Save",
			"bot_id": cycle.BotID,
			"period": cycle.Period,
		}).WithError(err).Error("Failed to save account value cycle")

		return err
	}

	return nil
}
