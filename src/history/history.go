package history

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fjr-software/flinkbot-bot/src/model"
)

const (
	Interval1m = "1m"
	Interval1h = "1h"
)

// History backfills OHLCV bars from the exchange into the candle archive.
// Reruns are idempotent, conflicting bars are updated in place.
type History struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (h *History) Start(symbol, quote, interval string) error {
	if interval != Interval1m && interval != Interval1h {
		return fmt.Errorf("history: unsupported interval %q", interval)
	}

	if h.Config == nil {
		h.Config = GetConfig()
	}
	if h.exchange == nil {
		h.exchange = newBinanceInstance()
	}

	if h.Config.AutoMode {
		if err := h.determineStartPoint(symbol, quote, interval); err != nil {
			return err
		}
	}

	klines, err := h.fetchSeries(symbol, quote, interval)
	if err != nil {
		return err
	}

	return h.save(klines, symbol+quote, interval)
}

func newBinanceInstance() *binance.Binance {
	return binance.NewWithConfig(&goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	})
}

// determineStartPoint resumes one interval before the newest archived bar so
// a partially written last bar gets overwritten on the next run.
func (h *History) determineStartPoint(symbol, quote, interval string) error {
	h.Config.StartDt = h.Config.StartDt.Add(-intervalDuration(interval))
	h.Config.EndDt = time.Now()

	var latestTime *sql.NullTime
	result := h.DB.Model(&model.Candle{}).
		Select("MAX(datetime)").
		Where(`symbol = ? AND "interval" = ?`, symbol+quote, interval).
		Take(&latestTime)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			h.Log.
				WithField("StartDt", h.Config.StartDt.String()).
				Info("No archived bars, starting from the configured date")
			return nil
		}

		h.Log.WithError(result.Error).Error("Failed to query latest datetime")
		return result.Error
	}

	if latestTime != nil && latestTime.Valid {
		h.Config.StartDt = latestTime.Time.Add(-intervalDuration(interval))
		h.Log.
			WithField("StartDt", h.Config.StartDt.String()).
			Info("Resuming from the last archived bar")
	}

	return nil
}

func (h *History) fetchSeries(symbol, quote, interval string) ([]goex.Kline, error) {
	pair := goex.NewCurrencyPair(goex.Currency{Symbol: symbol}, goex.Currency{Symbol: quote})

	const millis = 1000
	return h.exchange.GetKlineRecords(
		pair,
		intervalToGoex(interval),
		h.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", h.Config.StartDt.Unix()*millis).
			Optional("endTime", h.Config.EndDt.Unix()*millis),
	)
}

func (h *History) save(klines []goex.Kline, pairName, interval string) error {
	for i := range klines {
		kline := klines[i]

		candle := &model.Candle{
			Datetime: time.Unix(kline.Timestamp, 0).UTC(),
			Symbol:   pairName,
			Interval: interval,
			Open:     decimal.NewFromFloat(kline.Open),
			High:     decimal.NewFromFloat(kline.High),
			Low:      decimal.NewFromFloat(kline.Low),
			Close:    decimal.NewFromFloat(kline.Close),
			Volume:   decimal.NewFromFloat(kline.Vol),
		}

		if err := h.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "datetime"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"interval", "open", "high", "low", "close", "volume"}),
		}).Create(candle).Error; err != nil {
			h.Log.WithError(err).Error("Candle upsert failed")
			return err
		}
	}

	h.Log.WithFields(logger.Fields{
		"symbol": pairName,
		"bars":   len(klines),
	}).Info("Candle archive updated")

	return nil
}

func intervalDuration(interval string) time.Duration {
	if interval == Interval1m {
		return time.Minute
	}
	return time.Hour
}

func intervalToGoex(interval string) goex.KlinePeriod {
	if interval == Interval1m {
		return goex.KLINE_PERIOD_1MIN
	}
	return goex.KLINE_PERIOD_1H
}
