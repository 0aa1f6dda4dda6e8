package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fjr-software/flinkbot-bot/src/account"
	"github.com/fjr-software/flinkbot-bot/src/analyzer"
	"github.com/fjr-software/flinkbot-bot/src/model"
)

const (
	// MaxRetry caps consecutive abnormal worker exits per (bot, symbol).
	MaxRetry = 3

	StatusRun  = "run"
	StatusStop = "stop"
)

type key struct {
	botID  uint
	symbol string
}

type workerState struct {
	status  string
	retries int
	running bool
	worker  Worker
	// forced overrides the worker's own exit code when the supervisor
	// reclaimed it (timeout or forced close).
	forced *int
}

// Status is one entry of the supervisor snapshot.
type Status struct {
	BotID   uint   `json:"bot_id"`
	Symbol  string `json:"symbol"`
	Status  string `json:"status"`
	Retries int    `json:"retries"`
	Running bool   `json:"running"`
}

// Processor supervises one worker per (bot, symbol): launch, timeout,
// exit-code interpretation, retry accounting and cooperative or forced
// shutdown.
type Processor struct {
	launcher Launcher
	timeout  time.Duration
	pause    time.Duration

	mu     sync.Mutex
	states map[key]*workerState
	logs   map[uint]*account.Log

	started  time.Time
	finished time.Time

	newLog func(botID uint) *account.Log
	now    func() time.Time
}

// NewProcessor tracks every symbol of the given bots. A non-positive timeout
// falls back to the configured default.
func NewProcessor(bots map[uint][]string, launcher Launcher, timeout time.Duration) *Processor {
	config := GetConfig()
	if timeout <= 0 {
		timeout = time.Duration(config.WorkerTimeout) * time.Second
	}

	p := &Processor{
		launcher: launcher,
		timeout:  timeout,
		pause:    time.Duration(config.RestartPause) * time.Second,
		states:   map[key]*workerState{},
		logs:     map[uint]*account.Log{},
		newLog:   account.NewLog,
		now:      time.Now,
	}

	for botID, symbols := range bots {
		for _, symbol := range symbols {
			p.states[key{botID: botID, symbol: symbol}] = &workerState{status: StatusRun}
		}
	}

	return p
}

// WithLogFactory overrides how per-bot log sinks are built.
func (p *Processor) WithLogFactory(newLog func(botID uint) *account.Log) *Processor {
	p.newLog = newLog
	return p
}

// WithRestartPause overrides the wait between worker relaunches.
func (p *Processor) WithRestartPause(pause time.Duration) *Processor {
	p.pause = pause
	return p
}

// Process runs one full batch: every tracked pair is driven until it reaches
// a terminal outcome. Returns after all workers finished.
func (p *Processor) Process(ctx context.Context) error {
	p.mu.Lock()
	p.started = p.now()
	p.finished = time.Time{}
	keys := make([]key, 0, len(p.states))
	for k := range p.states {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	group, ctx := errgroup.WithContext(ctx)
	for _, k := range keys {
		k := k
		group.Go(func() error {
			return p.runSymbol(ctx, k)
		})
	}

	err := group.Wait()

	p.mu.Lock()
	p.finished = p.now()
	p.mu.Unlock()

	return err
}

// TimeExecution returns the wall-clock duration of the last finished batch.
func (p *Processor) TimeExecution() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started.IsZero() || p.finished.IsZero() {
		return 0
	}
	return p.finished.Sub(p.started)
}

// CloseProcess requests one pair to stop. A running worker receives the
// cooperative stop sentinel, or is killed with exit code CLOSED when forced.
func (p *Processor) CloseProcess(botID uint, symbol string, force bool) {
	p.mu.Lock()
	state, ok := p.states[key{botID: botID, symbol: symbol}]
	if !ok {
		p.mu.Unlock()
		return
	}

	state.status = StatusStop
	worker := state.worker
	if worker != nil && force {
		forced := analyzer.ResultClosed
		state.forced = &forced
	}
	p.mu.Unlock()

	if worker == nil {
		return
	}

	if force {
		worker.Kill()
	} else {
		worker.Stop()
	}
}

// CloseAllProcess requests every tracked pair to stop.
func (p *Processor) CloseAllProcess(force bool) {
	p.mu.Lock()
	keys := make([]key, 0, len(p.states))
	for k := range p.states {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	for _, k := range keys {
		p.CloseProcess(k.botID, k.symbol, force)
	}
}

// Snapshot returns the tracked pairs sorted by bot and symbol.
func (p *Processor) Snapshot() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make([]Status, 0, len(p.states))
	for k, state := range p.states {
		snapshot = append(snapshot, Status{
			BotID:   k.botID,
			Symbol:  k.symbol,
			Status:  state.status,
			Retries: state.retries,
			Running: state.running,
		})
	}

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].BotID != snapshot[j].BotID {
			return snapshot[i].BotID < snapshot[j].BotID
		}
		return snapshot[i].Symbol < snapshot[j].Symbol
	})

	return snapshot
}

// runSymbol drives one pair to a terminal outcome: SUCCESS, CLOSED and
// CLOSED_TIMEOUT end the pair; RESTART relaunches for free; every other code
// consumes retry budget until MAX_RETRY stops the pair for good.
func (p *Processor) runSymbol(ctx context.Context, k key) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.statusOf(k) == StatusStop {
			return nil
		}

		code, err := p.launchWorker(ctx, k)
		if err != nil {
			p.emit(ctx, k, model.LogLevelError, fmt.Sprintf("Failed to launch bot-%d-%s: %v", k.botID, k.symbol, err))
			return err
		}

		switch code {
		case analyzer.ResultSuccess:
			p.emit(ctx, k, model.LogLevelInfo, fmt.Sprintf("Bot-%d-%s - finished", k.botID, k.symbol))
			return nil
		case analyzer.ResultClosed:
			p.emit(ctx, k, model.LogLevelInfo, fmt.Sprintf("Bot-%d-%s - closed", k.botID, k.symbol))
			return nil
		case analyzer.ResultClosedTimeout:
			p.emit(ctx, k, model.LogLevelWarning, fmt.Sprintf("Bot-%d-%s - finished timeout", k.botID, k.symbol))
			return nil
		}

		p.mu.Lock()
		state := p.states[k]
		if code != analyzer.ResultRestart {
			state.retries++
		}
		retries := state.retries
		exhausted := retries >= MaxRetry
		if exhausted {
			state.status = StatusStop
		}
		p.mu.Unlock()

		if exhausted {
			p.emit(ctx, k, model.LogLevelWarning, fmt.Sprintf("Maximum attempts bot-%d-%s", k.botID, k.symbol))
			return nil
		}

		message := "Starting bot"
		if code != analyzer.ResultRestart {
			message = "Error processing bot"
		}
		p.emit(ctx, k, model.LogLevelInfo, fmt.Sprintf("%s-%d-%s - %d", message, k.botID, k.symbol, code))

		if p.pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.pause):
			}
		}
	}
}

// launchWorker runs one worker to completion under a timeout timer. A timer
// firing after the worker already exited is a resolved race and does
// nothing.
func (p *Processor) launchWorker(ctx context.Context, k key) (int, error) {
	output := func(line string, stderr bool) {
		level := model.LogLevelInfo
		if stderr {
			level = model.LogLevelError
		}

		indented := strings.ReplaceAll(line, "\n", "\n\t")
		p.emit(ctx, k, level, fmt.Sprintf("Bot-%d-%s - output:\n\t%s", k.botID, k.symbol, indented))
	}

	worker, err := p.launcher.Launch(ctx, k.botID, k.symbol, output)
	if err != nil {
		return analyzer.ResultDefault, err
	}

	p.mu.Lock()
	state := p.states[k]
	state.worker = worker
	state.running = true
	state.forced = nil
	p.mu.Unlock()

	timer := time.AfterFunc(p.timeout, func() {
		p.timeoutWorker(k, worker)
	})

	code := worker.Wait()
	timer.Stop()

	p.mu.Lock()
	if state.forced != nil {
		code = *state.forced
	}
	state.worker = nil
	state.running = false
	p.mu.Unlock()

	return code, nil
}

func (p *Processor) timeoutWorker(k key, worker Worker) {
	p.mu.Lock()
	state := p.states[k]
	if state.worker != worker || !state.running {
		p.mu.Unlock()
		p.emit(context.Background(), k, model.LogLevelInfo, fmt.Sprintf("Stop finished bot-%d-%s", k.botID, k.symbol))
		return
	}

	forced := analyzer.ResultTimeout
	if state.status == StatusStop {
		forced = analyzer.ResultClosedTimeout
	}
	state.forced = &forced
	p.mu.Unlock()

	worker.Kill()
	p.emit(context.Background(), k, model.LogLevelWarning, fmt.Sprintf("Timeout bot-%d-%s", k.botID, k.symbol))
}

func (p *Processor) statusOf(k key) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[k].status
}

func (p *Processor) logFor(botID uint) *account.Log {
	p.mu.Lock()
	defer p.mu.Unlock()

	log, ok := p.logs[botID]
	if !ok {
		log = p.newLog(botID)
		p.logs[botID] = log
	}
	return log
}

func (p *Processor) emit(ctx context.Context, k key, level, message string) {
	p.logFor(k.botID).Register(ctx, level, message)

	entry := logger.WithFields(map[string]interface{}{
		"bot_id": k.botID,
		"symbol": k.symbol,
	})

	switch level {
	case model.LogLevelWarning:
		entry.Warn(message)
	case model.LogLevelError:
		entry.Error(message)
	default:
		entry.Info(message)
	}
}
