package processor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/fjr-software/flinkbot-bot/src/analyzer"
)

// OutputFunc receives one line of worker output. Error output arrives with
// stderr set.
type OutputFunc func(line string, stderr bool)

// Worker is one running decision tick.
type Worker interface {
	// Stop writes the cooperative stop sentinel and closes the worker's
	// input. The worker decides when to honor it.
	Stop() error
	// Kill severs the worker's I/O and terminates it immediately.
	Kill() error
	// Wait blocks until the worker exits and returns its exit code.
	Wait() int
}

// Launcher starts one worker tick for a (bot, symbol) pair. Tests inject
// scripted workers through this seam.
type Launcher interface {
	Launch(ctx context.Context, botID uint, symbol string, output OutputFunc) (Worker, error)
}

// ExecLauncher runs workers as child processes of the current binary.
type ExecLauncher struct {
	// Binary overrides the worker executable, defaulting to the running
	// binary.
	Binary string
}

// Launch execs `<binary> --type=symbol --bot=<id> --symbol=<pair>` and
// forwards its output line-wise.
func (l *ExecLauncher) Launch(ctx context.Context, botID uint, symbol string, output OutputFunc) (Worker, error) {
	binary := l.Binary
	if binary == "" {
		executable, err := os.Executable()
		if err != nil {
			return nil, err
		}
		binary = executable
	}

	cmd := exec.CommandContext(ctx, binary,
		"--type=symbol",
		fmt.Sprintf("--bot=%d", botID),
		"--symbol="+symbol,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	worker := &execWorker{cmd: cmd, stdin: stdin}
	worker.forwarders.Add(2)
	go worker.forward(stdout, output, false)
	go worker.forward(stderr, output, true)

	return worker, nil
}

type execWorker struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	forwarders sync.WaitGroup
	killOnce   sync.Once
	closeOnce  sync.Once
}

func (w *execWorker) Stop() error {
	_, err := io.WriteString(w.stdin, analyzer.StopSentinel+"\n")
	w.closeStdin()
	return err
}

func (w *execWorker) Kill() error {
	w.closeStdin()

	var err error
	w.killOnce.Do(func() {
		err = w.cmd.Process.Kill()
	})
	return err
}

func (w *execWorker) Wait() int {
	w.forwarders.Wait()

	err := w.cmd.Wait()
	if err == nil {
		return w.cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		// Killed by signal.
		return analyzer.ResultClosed
	}

	return analyzer.ResultDefault
}

func (w *execWorker) closeStdin() {
	w.closeOnce.Do(func() {
		w.stdin.Close()
	})
}

func (w *execWorker) forward(r io.Reader, output OutputFunc, stderr bool) {
	defer w.forwarders.Done()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		output(scanner.Text(), stderr)
	}
}
