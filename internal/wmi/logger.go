package wmi

import (
	"context"
	"errors"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/go-wmi/internal/dcom"
)

const (
	// logSubsystem is the tflog subsystem all connector logs are written to.
	logSubsystem = "wmi"

	// EnvLogLevel sets the level of the wmi log subsystem.
	EnvLogLevel = "WMI_LOG_LEVEL"
)

// Connection events passed to LogConnectionEvent.
const (
	eventConnectAttempt      = "connect_attempt"
	eventConnectEstablished  = "connect_established"
	eventConnectFailed       = "connect_failed"
	eventSessionCreated      = "session_created"
	eventSessionDestroyed    = "session_destroyed"
	eventSessionRetained     = "session_retained"
	eventTeardownFailed      = "teardown_failed"
	eventDiagnosticsDegraded = "diagnostics_not_suppressed"
)

type subsystemKey struct{}

// Contexts without the wmi subsystem log here instead, so warnings and
// errors still surface outside a Terraform provider.
var (
	fallbackMu     sync.RWMutex
	fallbackLogger hclog.Logger = newFallbackLogger()
)

func newFallbackLogger() hclog.Logger {
	level := hclog.LevelFromString(os.Getenv(EnvLogLevel))
	if level == hclog.NoLevel {
		level = hclog.Warn
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   logSubsystem,
		Level:  level,
		Output: os.Stderr,
	})
}

// InitLogging registers the wmi log subsystem on ctx, with its level taken
// from WMI_LOG_LEVEL. ctx must carry a tflog root logger; without
// InitLogging, logs go to an hclog logger on stderr.
func InitLogging(ctx context.Context) context.Context {
	ctx = tflog.NewSubsystem(ctx, logSubsystem, tflog.WithLevelFromEnv(EnvLogLevel))
	return context.WithValue(ctx, subsystemKey{}, true)
}

func logTrace(ctx context.Context, msg string, fields map[string]any) {
	emit(ctx, hclog.Trace, msg, fields)
}

func logDebug(ctx context.Context, msg string, fields map[string]any) {
	emit(ctx, hclog.Debug, msg, fields)
}

func logInfo(ctx context.Context, msg string, fields map[string]any) {
	emit(ctx, hclog.Info, msg, fields)
}

func logWarn(ctx context.Context, msg string, fields map[string]any) {
	emit(ctx, hclog.Warn, msg, fields)
}

func logError(ctx context.Context, msg string, fields map[string]any) {
	emit(ctx, hclog.Error, msg, fields)
}

func emit(ctx context.Context, level hclog.Level, msg string, fields map[string]any) {
	if ctx.Value(subsystemKey{}) == nil {
		fallback().Log(level, msg, fieldArgs(fields)...)
		return
	}

	switch level {
	case hclog.Trace:
		tflog.SubsystemTrace(ctx, logSubsystem, msg, fields)
	case hclog.Debug:
		tflog.SubsystemDebug(ctx, logSubsystem, msg, fields)
	case hclog.Info:
		tflog.SubsystemInfo(ctx, logSubsystem, msg, fields)
	case hclog.Warn:
		tflog.SubsystemWarn(ctx, logSubsystem, msg, fields)
	default:
		tflog.SubsystemError(ctx, logSubsystem, msg, fields)
	}
}

func fallback() hclog.Logger {
	fallbackMu.RLock()
	defer fallbackMu.RUnlock()
	return fallbackLogger
}

func setFallbackLogger(l hclog.Logger) {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	fallbackLogger = l
}

// fieldArgs flattens fields into sorted key/value pairs.
func fieldArgs(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

// LogOperation is a helper function to log an operation with timing.
func LogOperation(ctx context.Context, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	logDebug(ctx, "Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		if code, ok := ErrorCode(err); ok {
			fields["native_code"] = dcom.FormatCode(code)
		}
		var wmiErr *Error
		if errors.As(err, &wmiErr) {
			fields["error_kind"] = string(wmiErr.Kind)
		}
		logError(ctx, "Operation failed", fields)
	} else {
		logDebug(ctx, "Operation completed successfully", fields)
	}

	return err
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event
	fields = SanitizeFields(fields)

	switch event {
	case eventConnectEstablished:
		logInfo(ctx, "Connection event", fields)
	case eventConnectFailed:
		logError(ctx, "Connection event", fields)
	case eventTeardownFailed, eventSessionRetained, eventDiagnosticsDegraded:
		logWarn(ctx, "Connection event", fields)
	default:
		logDebug(ctx, "Connection event", fields)
	}
}

// Field names whose values are never logged.
var redactedKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"credential":    true,
	"credentials":   true,
	"ntlm_response": true,
	"session_key":   true,
}

// Fragments marking a string value as carrying a secret, such as a
// connection string with an inline password.
var redactedFragments = []string{"password=", "passwd=", "pwd=", "secret=", "token="}

const redacted = "[REDACTED]"

// SanitizeFields returns a copy of fields safe to log.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	for key, value := range fields {
		if redactedKeys[strings.ToLower(key)] {
			sanitized[key] = redacted
			continue
		}
		if s, ok := value.(string); ok && carriesSecret(s) {
			sanitized[key] = redacted
			continue
		}
		sanitized[key] = value
	}

	return sanitized
}

func carriesSecret(s string) bool {
	lower := strings.ToLower(s)
	return slices.ContainsFunc(redactedFragments, func(fragment string) bool {
		return strings.Contains(lower, fragment)
	})
}
