// Package log is the structured, key-value logging facade used
// throughout the monitor: a slog-backed logger in the idiom of
// go-ethereum's log package, wrapped with the glog-style verbosity
// filtering in handler_glog.go.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	ethlog "github.com/ethereum/go-ethereum/log"
)

// Logger is the interface every component logs through.
type Logger = ethlog.Logger

const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelCrit  slog.Level = 12
)

var root = ethlog.Root()

// New returns a logger carrying the given call-site key-value context.
func New(ctx ...interface{}) Logger { return ethlog.New(ctx...) }

// Root returns the process-wide root logger.
func Root() Logger { return root }

// SetDefault installs l as the root logger used by the package-level
// Trace/Debug/Info/Warn/Error/Crit helpers.
func SetDefault(l Logger) {
	root = l
	ethlog.SetDefault(l)
}

func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }

func Enabled(ctx context.Context, level slog.Level) bool {
	return root.Enabled(ctx, level)
}

// NewLogger wraps an arbitrary slog.Handler as a Logger.
func NewLogger(h slog.Handler) Logger {
	return ethlog.NewLogger(h)
}

// LvlFromString parses a level name ("trace", "debug", "info", "warn",
// "error", "crit") into a slog.Level.
func LvlFromString(lvlString string) (slog.Level, error) {
	level, err := ethlog.LvlFromString(lvlString)
	return level, err
}

// DiscardHandler returns a handler that drops every record, for
// callers that don't care about log output.
func DiscardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

// NewTerminalHandler returns a handler producing colorized,
// human-readable lines for interactive use.
func NewTerminalHandler(w io.Writer, useColor bool) slog.Handler {
	return ethlog.NewTerminalHandler(w, useColor)
}

// NewFileHandler returns a JSON handler writing to w, for use behind
// lumberjack rotation.
func NewFileHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, nil)
}

// Stderr is the default sink before cmd/monitor installs the
// configured one.
var Stderr io.Writer = os.Stderr
