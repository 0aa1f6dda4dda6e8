package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fjr-software/flinkbot-bot/src/database"
	"github.com/fjr-software/flinkbot-bot/src/model"
)

// OrderRepository handles read/write operations for order rows. Orders are
// upserted keyed by the exchange order id and never deleted.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main database.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// UpdateOrCreate upserts an order keyed by its exchange order id.
func (r *OrderRepository) UpdateOrCreate(ctx context.Context, order *model.Order) error {
	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "UpdateOrCreate",
		"order_id": order.OrderID,
		"side":     order.Side,
		"status":   order.Status,
	}).Debug("Upserting order")

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "symbol_id", "side", "position_side", "type",
			"quantity", "price", "stop_price", "close_position",
			"time_in_force", "client_order_id", "status",
			"pnl_close", "pnl_commission", "pnl_realized", "updated_at",
		}),
	}).Create(order).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "UpdateOrCreate",
			"order_id": order.OrderID,
		}).WithError(err).Error("Failed to upsert order")

		return err
	}

	return nil
}

// FindUnsettled returns orders for a symbol that are still NEW or
// PARTIALLY_FILLED locally and need refreshing against the exchange.
func (r *OrderRepository) FindUnsettled(ctx context.Context, userID, symbolID uint) ([]model.Order, error) {
	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol_id = ?", userID, symbolID).
		Where("status IN ?", []string{model.OrderStatusNew, model.OrderStatusPartiallyFilled}).
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "OrderRepository",
			"op":        "FindUnsettled",
			"user_id":   userID,
			"symbol_id": symbolID,
		}).WithError(err).Error("Failed to fetch unsettled orders")

		return nil, err
	}

	return orders, nil
}

// FindLastEntry returns the newest LIMIT order for a position side that is
// working or already filled. Used for the re-entry cool-down.
// Returns (nil, nil) if no such order exists.
func (r *OrderRepository) FindLastEntry(ctx context.Context, userID, symbolID uint, positionSide string) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol_id = ? AND position_side = ? AND type = ?",
			userID, symbolID, positionSide, model.OrderTypeLimit).
		Where("status IN ?", []string{
			model.OrderStatusNew,
			model.OrderStatusPartiallyFilled,
			model.OrderStatusFilled,
		}).
		Order("updated_at DESC").
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":          "OrderRepository",
			"op":            "FindLastEntry",
			"user_id":       userID,
			"symbol_id":     symbolID,
			"position_side": positionSide,
		}).WithError(err).Error("Failed to fetch last entry order")

		return nil, err
	}

	return &order, nil
}

// AvgFilledPrice computes the average price of the newest `limit` FILLED
// LIMIT orders on a position side since the given time. Returns 0 when no
// order qualifies, which callers treat as "no filter".
func (r *OrderRepository) AvgFilledPrice(ctx context.Context, userID, symbolID uint, positionSide string, since time.Time, limit int) (float64, error) {
	if limit <= 0 {
		return 0, nil
	}

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol_id = ? AND position_side = ? AND type = ?",
			userID, symbolID, positionSide, model.OrderTypeLimit).
		Where("status = ?", model.OrderStatusFilled).
		Where("updated_at >= ?", since).
		Order("updated_at DESC").
		Limit(limit).
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":          "OrderRepository",
			"op":            "AvgFilledPrice",
			"user_id":       userID,
			"symbol_id":     symbolID,
			"position_side": positionSide,
		}).WithError(err).Error("Failed to fetch filled orders")

		return 0, err
	}

	if len(orders) == 0 {
		return 0, nil
	}

	total := 0.0
	for _, order := range orders {
		total += order.Price
	}

	return total / float64(len(orders)), nil
}
