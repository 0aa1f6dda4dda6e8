package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fjr-software/flinkbot-bot/src/database"
	"github.com/fjr-software/flinkbot-bot/src/model"
)

// PositionRepository handles read/write operations for position rows.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// FindByUserSymbolSide fetches the single row for one (user, symbol, side).
// Returns (nil, nil) if no row exists yet.
func (r *PositionRepository) FindByUserSymbolSide(ctx context.Context, userID, symbolID uint, side string) (*model.Position, error) {
	var position model.Position

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol_id = ? AND side = ?", userID, symbolID, side).
		First(&position).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "FindByUserSymbolSide",
			"user_id":   userID,
			"symbol_id": symbolID,
			"side":      side,
		}).WithError(err).Error("Failed to fetch position")

		return nil, err
	}

	return &position, nil
}

// FindBySymbol returns both hedge-mode rows (LONG and SHORT) for a symbol,
// with the symbol association preloaded.
func (r *PositionRepository) FindBySymbol(ctx context.Context, userID, symbolID uint) ([]model.Position, error) {
	var positions []model.Position

	err := r.db.WithContext(ctx).
		Preload("Symbol").
		Where("user_id = ? AND symbol_id = ?", userID, symbolID).
		Order("side ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "FindBySymbol",
			"user_id":   userID,
			"symbol_id": symbolID,
		}).WithError(err).Error("Failed to fetch positions")

		return nil, err
	}

	return positions, nil
}

// Save creates the row when ID is zero and updates it otherwise.
func (r *PositionRepository) Save(ctx context.Context, position *model.Position) error {
	err := r.db.WithContext(ctx).Save(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "Save",
			"user_id":   position.UserID,
			"symbol_id": position.SymbolID,
			"side":      position.Side,
		}).WithError(err).Error("Failed to save position")

		return err
	}

	return nil
}
