// Package log is the structured logger used across the replication engine.
//
// It is a thin wrapper around log/slog: a handler that renders colorized,
// aligned key=value lines to a terminal, a second handler that renders JSON
// for log aggregators, and a Glog-style handler with a global verbosity
// threshold (its per-file patterns are parsed but do not affect filtering).
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors slog.Level but gives the six names this codebase actually
// uses names instead of made-up integers.
type Level int

const (
	LevelTrace Level = -8
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
	LevelCrit  Level = 12
)

func (l Level) slog() slog.Level { return slog.Level(l) }

var levelNames = map[slog.Level]string{
	slog.Level(LevelTrace): "TRACE",
	slog.Level(LevelDebug): "DEBUG",
	slog.Level(LevelInfo):  "INFO",
	slog.Level(LevelWarn):  "WARN",
	slog.Level(LevelError): "ERROR",
	slog.Level(LevelCrit):  "CRIT",
}

// Logger is the interface every component in this repo takes instead of the
// concrete *slog.Logger, so tests can swap in a buffering logger.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any) // logs then os.Exit(1); only for §7 Fatal errors
	With(ctx ...any) Logger
}

type logger struct {
	inner *slog.Logger
}

// New builds a logger writing a human-readable, colorized (when attached to
// a terminal) line format to w.
func New(w io.Writer) Logger {
	return &logger{inner: slog.New(NewTerminalHandler(w))}
}

// NewJSON builds a logger emitting one JSON object per line, for shipping to
// log aggregators in production.
func NewJSON(w io.Writer) Logger {
	return &logger{inner: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
}

// NewRotating wraps NewJSON with size/age-based rotation via lumberjack,
// for the on-disk operator log file.
func NewRotating(path string, maxSizeMB, maxBackups, maxAgeDays int) Logger {
	return NewJSON(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	})
}

// Root is the default logger, usable before a component's own logger is
// wired up (e.g. during config loading, before we know the configured log
// level and output path).
var Root Logger = New(os.Stderr)

func SetRoot(l Logger) { Root = l }

func (l *logger) log(level slog.Level, msg string, ctx []any) {
	if level >= slog.LevelError {
		// Attach the call site two frames up (the component's Error/Crit call),
		// mirroring go-ethereum's log package: errors should point at their
		// origin, not at this wrapper.
		if pc := stack.Caller(2); pc != 0 {
			ctx = append(ctx, "caller", fmt.Sprintf("%+v", pc))
		}
	}
	l.inner.Log(nil, level, msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.log(LevelTrace.slog(), msg, ctx) }
func (l *logger) Debug(msg string, ctx ...any) { l.log(LevelDebug.slog(), msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.log(LevelInfo.slog(), msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.log(LevelWarn.slog(), msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.log(LevelError.slog(), msg, ctx) }
func (l *logger) Crit(msg string, ctx ...any) {
	l.log(LevelCrit.slog(), msg, ctx)
	os.Exit(1)
}

func (l *logger) With(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

// isTerminal reports whether w is a color-capable terminal, used to decide
// whether NewTerminalHandler emits ANSI color codes.
func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// colorableWriter wraps w so ANSI sequences render on Windows consoles too.
func colorableWriter(w io.Writer) io.Writer {
	if f, ok := w.(*os.File); ok {
		return colorable.NewColorable(f)
	}
	return w
}

func nowStamp() string {
	return time.Now().Format("01-02|15:04:05.000")
}
