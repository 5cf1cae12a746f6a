// Package plog provides the application-wide structured logger. It wraps
// log/slog with a level-dispatch handler so that routine output goes to
// stdout while warnings and errors go to stderr, and adds a NOTICE level
// between INFO and WARN for per-file action lines (COPY, DELETE, SKIP).
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelNotice sits between slog.LevelInfo (0) and slog.LevelWarn (4).
// It is used for per-file action lines which are more detailed than the
// run-level INFO summaries but are not warnings.
const LevelNotice = slog.Level(2)

// levelNames maps custom levels to their display names.
var levelNames = map[slog.Leveler]string{
	LevelNotice: "NOTICE",
}

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO/NOTICE and below go to one
// handler, while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

var defaultLogger atomic.Pointer[slog.Logger]
var minLevel = new(slog.LevelVar) // Shared by all stdout handlers; defaults to INFO.
var quietMode atomic.Bool

// handlerOptions returns the common options, renaming the custom NOTICE level.
func handlerOptions(level slog.Leveler) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				if name, ok := levelNames[level]; ok {
					a.Value = slog.StringValue(name)
				}
			}
			return a
		},
	}
}

func init() {
	stdoutHandler := slog.NewTextHandler(os.Stdout, handlerOptions(minLevel))
	stderrHandler := slog.NewTextHandler(os.Stderr, handlerOptions(slog.LevelWarn))

	defaultLogger.Store(slog.New(&LevelDispatchHandler{
		stdoutHandler: stdoutHandler,
		stderrHandler: stderrHandler,
	}))
}

// SetLevel adjusts the minimum level of the stdout handler from a config
// string. Unknown values keep the current level.
func SetLevel(level string) {
	switch level {
	case "debug":
		minLevel.Set(slog.LevelDebug)
	case "notice":
		minLevel.Set(LevelNotice)
	case "info":
		minLevel.Set(slog.LevelInfo)
	case "warn":
		minLevel.Set(slog.LevelWarn)
	case "error":
		minLevel.Set(slog.LevelError)
	}
}

// SetOutput allows redirecting the logger's output, primarily for testing.
func SetOutput(w io.Writer) {
	// When redirecting output for tests, ensure quiet mode is off
	// so that all levels are written to the provided writer.
	quietMode.Store(false)
	defaultLogger.Store(slog.New(slog.NewTextHandler(w, handlerOptions(minLevel))))
}

// SetFileSink mirrors all log output into a size-rotated file. Intended for
// the long-running watch daemon, where stdout may not be captured anywhere.
func SetFileSink(path string) {
	fileWriter := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	fileHandler := slog.NewTextHandler(fileWriter, handlerOptions(minLevel))
	stdoutHandler := slog.NewTextHandler(os.Stdout, handlerOptions(minLevel))
	stderrHandler := slog.NewTextHandler(os.Stderr, handlerOptions(slog.LevelWarn))

	defaultLogger.Store(slog.New(&LevelDispatchHandler{
		stdoutHandler: &teeHandler{a: stdoutHandler, b: fileHandler},
		stderrHandler: &teeHandler{a: stderrHandler, b: fileHandler},
	}))
}

// teeHandler duplicates records to two handlers. Errors from the secondary
// (file) handler are ignored so a full disk never breaks console logging.
type teeHandler struct {
	a, b slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.a.Enabled(ctx, level) || h.b.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.a.Handle(ctx, r)
	_ = h.b.Handle(ctx, r.Clone())
	return err
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{a: h.a.WithAttrs(attrs), b: h.b.WithAttrs(attrs)}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{a: h.a.WithGroup(name), b: h.b.WithGroup(name)}
}

// SetQuiet enables or disables quiet mode for the global logger.
// In quiet mode, INFO and NOTICE level logs are suppressed.
func SetQuiet(quiet bool) {
	quietMode.Store(quiet)
}

// IsQuiet returns true if the global logger is in quiet mode.
func IsQuiet() bool {
	return quietMode.Load()
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Load().Debug(msg, args...)
}

// Notice logs a per-file action line.
func Notice(msg string, args ...any) {
	if quietMode.Load() {
		return
	}
	defaultLogger.Load().Log(context.Background(), LevelNotice, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	if quietMode.Load() {
		return
	}
	defaultLogger.Load().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Load().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Load().Error(msg, args...)
}
