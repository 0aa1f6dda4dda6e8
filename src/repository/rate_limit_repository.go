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

// RateLimitRepository handles the api_rate_limit budget rows consumed by the
// exchange manager.
type RateLimitRepository struct {
	db *gorm.DB
}

// NewRateLimitRepository creates a new repository instance using the main database.
func NewRateLimitRepository() *RateLimitRepository {
	return &RateLimitRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *RateLimitRepository) WithDB(db *gorm.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// FindHosting fetches the active hosting row for this machine's IP.
// Returns (nil, nil) when the IP has no budget row.
func (r *RateLimitRepository) FindHosting(ctx context.Context, exchange, ip string) (*model.APIRateLimit, error) {
	var row model.APIRateLimit

	err := r.db.WithContext(ctx).
		Where("type = ? AND exchange = ? AND status = ? AND ip = ?",
			model.RateLimitTypeHosting, exchange, model.RateLimitStatusActive, ip).
		First(&row).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "RateLimitRepository",
			"op":       "FindHosting",
			"exchange": exchange,
			"ip":       ip,
		}).WithError(err).Error("Failed to fetch hosting rate limit row")

		return nil, err
	}

	return &row, nil
}

// FindActiveProxies returns every active proxy budget row for an exchange.
func (r *RateLimitRepository) FindActiveProxies(ctx context.Context, exchange string) ([]model.APIRateLimit, error) {
	var rows []model.APIRateLimit

	err := r.db.WithContext(ctx).
		Where("type = ? AND exchange = ? AND status = ?",
			model.RateLimitTypeProxy, exchange, model.RateLimitStatusActive).
		Order("id ASC").
		Find(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "RateLimitRepository",
			"op":       "FindActiveProxies",
			"exchange": exchange,
		}).WithError(err).Error("Failed to fetch proxy rate limit rows")

		return nil, err
	}

	return rows, nil
}

// UpdateUsage stores the consumed request/order quota for a budget row.
func (r *RateLimitRepository) UpdateUsage(ctx context.Context, id uint, requestCount, orderCount int) error {
	now := time.Now()

	err := r.db.WithContext(ctx).
		Model(&model.APIRateLimit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"request_count":     requestCount,
			"request_last_time": now,
			"order_count":       orderCount,
			"order_last_time":   now,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":          "RateLimitRepository",
			"op":            "UpdateUsage",
			"id":            id,
			"request_count": requestCount,
			"order_count":   orderCount,
		}).WithError(err).Error("Failed to update rate limit usage")

		return err
	}

	return nil
}
