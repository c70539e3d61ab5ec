package dcom

import (
	"errors"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// The runtime's internal diagnostics go to a process-wide logger, separate
// from the structured logging of callers.
var (
	diagMu     sync.RWMutex
	diagLogger hclog.Logger = newDiagnosticsLogger()

	suppressOnce = new(sync.Once)
	suppressErr  error

	errDiagnosticsPinned = errors.New("diagnostics logger ignored level change")
)

func newDiagnosticsLogger() hclog.Logger {
	level := hclog.LevelFromString(os.Getenv("DCOM_LOG_LEVEL"))
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "dcom",
		Level:  level,
		Output: os.Stderr,
	})
}

func diagnostics() hclog.Logger {
	diagMu.RLock()
	defer diagMu.RUnlock()

	if diagLogger == nil {
		return hclog.NewNullLogger()
	}
	return diagLogger
}

// DiagnosticsLogger returns the runtime diagnostics logger.
func DiagnosticsLogger() hclog.Logger {
	return diagnostics()
}

// SetDiagnosticsLogger replaces the runtime diagnostics logger. A nil logger
// disables diagnostics entirely.
func SetDiagnosticsLogger(l hclog.Logger) {
	diagMu.Lock()
	defer diagMu.Unlock()
	diagLogger = l
}

// suppressDiagnostics silences the runtime diagnostics logger. The logger is
// process-wide, so only the first call acts; later calls report its outcome.
func suppressDiagnostics() error {
	suppressOnce.Do(func() {
		suppressErr = silenceDiagnostics()
	})
	return suppressErr
}

func silenceDiagnostics() error {
	diagMu.Lock()
	defer diagMu.Unlock()

	if diagLogger == nil {
		return nil
	}

	diagLogger.SetLevel(hclog.Off)
	if level := diagLogger.GetLevel(); level != hclog.Off && level != hclog.NoLevel {
		return errDiagnosticsPinned
	}
	return nil
}
