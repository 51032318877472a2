package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Daemon is a command line application running until it is asked to quit.
type Daemon interface {
	Run() error
	UsageError() bool
	Hup() (shouldQuit bool)
	Quit()
}

// Exit codes of RunDaemon.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitUsageError = 2
)

// RunDaemon runs d with signal handling installed and returns the process exit code.
//
// SIGINT and SIGTERM quit the daemon. SIGHUP quits it only when Hup asks to.
func RunDaemon(d Daemon) int {
	defer handleSignals(d)()

	if err := d.Run(); err != nil {
		slog.Error(err.Error())

		if d.UsageError() {
			return ExitUsageError
		}
		return ExitError
	}
	return ExitOK
}

// handleSignals forwards the process signals to d until the returned function is called.
func handleSignals(d Daemon) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for sig := range sigs {
			if sig == syscall.SIGHUP && !d.Hup() {
				continue
			}
			slog.Debug("Quitting on signal", "signal", sig)
			d.Quit()
			return
		}
		slog.Debug("Signal channel closed")
	}()

	return func() {
		signal.Stop(sigs)
		close(sigs)
		wg.Wait()
	}
}
