package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/fjr-software/flinkbot-bot/src/analyzer"
	"github.com/fjr-software/flinkbot-bot/src/database"
	"github.com/fjr-software/flinkbot-bot/src/history"
	"github.com/fjr-software/flinkbot-bot/src/processor"
	"github.com/fjr-software/flinkbot-bot/src/repository"
	"github.com/fjr-software/flinkbot-bot/src/server"
)

var Version string

// shutdownGrace is how long cooperative shutdown waits before workers are
// killed.
const shutdownGrace = 30 * time.Second

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "Flinkbot"
	app.Usage = "The Flinkbot trading engine"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "type", Usage: "run mode: process or symbol", Value: "process"},
		cli.UintFlag{Name: "bot", Usage: "bot id (symbol mode)"},
		cli.StringFlag{Name: "symbol", Usage: "trading pair (symbol mode)"},
	}
	app.Action = runAction
	app.Commands = []cli.Command{historyCMD}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var historyCMD = cli.Command{
	Name:        "history",
	Usage:       "backfill OHLCV candles",
	Action:      historyAction,
	Description: `Fetch OHLCV bars from the exchange into the candle archive`,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "symbol", Usage: "base asset", Value: "BTC"},
		cli.StringFlag{Name: "quote", Usage: "quote asset", Value: "USDT"},
		cli.StringFlag{Name: "interval", Usage: "bar interval: 1m or 1h", Value: "1h"},
	},
}

func runAction(c *cli.Context) error {
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	if c.String("type") == "symbol" {
		return runSymbol(c.Uint("bot"), c.String("symbol"))
	}

	return runProcess()
}

// runSymbol executes one decision tick and reports the outcome through the
// process exit code.
func runSymbol(botID uint, symbol string) error {
	if botID == 0 || symbol == "" {
		return fmt.Errorf("symbol mode requires --bot and --symbol")
	}

	ctx := context.Background()

	worker, err := analyzer.New(ctx, botID)
	if err != nil {
		logger.WithError(err).Error("Failed to load bot")
		os.Exit(analyzer.ResultDefault)
	}

	worker.WatchStop(os.Stdin)

	if err := worker.Run(ctx, symbol); err != nil {
		logger.WithFields(map[string]interface{}{
			"bot_id": botID,
			"symbol": symbol,
		}).WithError(err).Error("Tick failed")
	}

	os.Exit(worker.ExitCode())
	return nil
}

// runProcess supervises one worker per active (bot, symbol) pair and serves
// the control plane until every pair finished or a signal arrives.
func runProcess() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bots, err := repository.NewBotRepository().FindActive(ctx)
	if err != nil {
		return err
	}

	pairs := map[uint][]string{}
	for _, bot := range bots {
		for _, symbol := range bot.Symbols {
			pairs[bot.ID] = append(pairs[bot.ID], symbol.Pair)
		}
	}
	if len(pairs) == 0 {
		logger.Warn("No active bots to supervise")
	}

	proc := processor.NewProcessor(pairs, &processor.ExecLauncher{}, 0)

	go func() {
		if err := server.New(proc, repository.NewBotLogRepository()).Start(ctx, ""); err != nil {
			logger.WithError(err).Error("Server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- proc.Process(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.WithError(err).Error("Supervisor finished with error")
			return err
		}
	case <-stop:
		logger.Info("Shutting down gracefully...")
		proc.CloseAllProcess(false)

		select {
		case <-done:
		case <-time.After(shutdownGrace):
			proc.CloseAllProcess(true)
			<-done
		}
	}

	logger.WithField("duration", proc.TimeExecution().String()).Info("Supervisor finished")
	return nil
}

func historyAction(c *cli.Context) error {
	logger.Info("Starting history backfill")

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	backfill := &history.History{
		Log: logger.WithField("cmd", "history"),
		DB:  database.MainDB,
	}

	if err := backfill.Start(c.String("symbol"), c.String("quote"), c.String("interval")); err != nil {
		logger.WithError(err).Error("History backfill failed")
		return err
	}

	return nil
}
