// Package log configures the process-wide zerolog logger and provides
// child-logger constructors carrying the identifiers that recur across
// the coordinator, worker, and auditor: task, worker, and auditor IDs.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Tests and callers that need extra fields
// derive children via the With* constructors rather than touching it.
var Logger zerolog.Logger

// Level names a log verbosity as it appears in config files and flags.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls output format and verbosity. A nil Output writes to
// stdout. Unknown levels fall back to info rather than erroring so a
// typo in a config file does not silence the process.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init builds the root logger and sets the global zerolog level.
// JSON output is line-delimited for log shippers; the console writer
// is for humans running a node in a terminal.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

func parseLevel(l Level) zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// The With* constructors return a pointer so call sites can chain level
// methods directly on the result; zerolog's level methods have pointer
// receivers and a function's return value is not addressable.

// WithComponent returns a child logger tagged with a subsystem name,
// e.g. "api", "distributor", "janitor".
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

// WithTaskID returns a child logger tagged with a task identifier.
func WithTaskID(taskID string) *zerolog.Logger {
	l := Logger.With().Str("task_id", taskID).Logger()
	return &l
}

// WithWorkerID returns a child logger tagged with a worker identifier.
func WithWorkerID(workerID string) *zerolog.Logger {
	l := Logger.With().Str("worker_id", workerID).Logger()
	return &l
}

// WithAuditorID returns a child logger tagged with an auditor identifier.
func WithAuditorID(auditorID string) *zerolog.Logger {
	l := Logger.With().Str("auditor_id", auditorID).Logger()
	return &l
}
