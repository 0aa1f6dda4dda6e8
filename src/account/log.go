package account

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"github.com/fjr-software/flinkbot-bot/src/model"
	"github.com/fjr-software/flinkbot-bot/src/repository"
)

// Log appends records to the bot's log sink. Registering is best effort, a
// failed insert must never abort a tick, so errors are only logged.
type Log struct {
	botID uint
	repo  *repository.BotLogRepository
}

// NewLog creates the log sink for one bot.
func NewLog(botID uint) *Log {
	return &Log{botID: botID, repo: repository.NewBotLogRepository()}
}

// WithRepository overrides the backing repository.
func (l *Log) WithRepository(repo *repository.BotLogRepository) *Log {
	return &Log{botID: l.botID, repo: repo}
}

// Register appends one record.
func (l *Log) Register(ctx context.Context, level, message string) {
	entry := &model.BotLog{
		BotID:   l.botID,
		Level:   level,
		Message: message,
	}

	if err := l.repo.Create(ctx, entry); err != nil {
		logger.WithFields(map[string]interface{}{
			"bot_id": l.botID,
			"level":  level,
		}).WithError(err).Warn("Bot log insert failed")
	}
}
