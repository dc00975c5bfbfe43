// ============================================================================
// scancore Logging - Extended slog Levels
// ============================================================================
//
// Package: internal/logging
// File: logging.go
// Purpose: spec.md §6 names an extended level set (stdout, debug, verbose,
//          hugeverbose, info, hugeinfo, success, hugesuccess, warning,
//          hugewarning, error, critical) beyond slog's four standard
//          levels. We map it onto log/slog the idiomatic way: custom
//          slog.Level constants at offsets from Debug/Info/Warn/Error,
//          plus a thin Logger wrapper with one method per level.
//
//          warning/hugewarning/error/critical additionally capture a
//          stack trace when called while handling a non-nil error or a
//          recovered panic, matching spec.md §6's "additionally capture
//          and emit a traceback of the currently-propagating exception".
//
// ============================================================================

package logging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// Extended levels, expressed as offsets from slog's four standard levels so
// any slog.Handler still buckets them sensibly (e.g. a level filter set to
// slog.LevelWarn still shows Warning/HugeWarning/Error/Critical).
const (
	LevelStdout      = slog.Level(-8) // below Debug: raw stdout-style output
	LevelDebug       = slog.LevelDebug
	LevelVerbose     = slog.Level(-2)
	LevelHugeVerbose = slog.Level(-1)
	LevelInfo        = slog.LevelInfo
	LevelHugeInfo    = slog.Level(1)
	LevelSuccess     = slog.Level(2)
	LevelHugeSuccess = slog.Level(3)
	LevelWarning     = slog.LevelWarn
	LevelHugeWarning = slog.Level(5)
	LevelError       = slog.LevelError
	LevelCritical    = slog.Level(9)
)

// Logger wraps a *slog.Logger with the spec's named levels.
type Logger struct {
	base *slog.Logger
}

// New wraps base. A nil base falls back to slog.Default().
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{base: base}
}

// With returns a Logger with additional structured attributes attached,
// e.g. per-module scan_id the way BaseModule's logging helpers do.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...)}
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	l.base.Log(ctx, level, msg, args...)
}

// logWithTrace is used by the levels that additionally capture a
// traceback of the currently-propagating error, if any.
func (l *Logger) logWithTrace(ctx context.Context, level slog.Level, err error, msg string, args ...any) {
	if err != nil {
		args = append(args, "error", err, "trace", captureTrace())
	}
	l.base.Log(ctx, level, msg, args...)
}

func captureTrace() string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}

func (l *Logger) Stdout(msg string, args ...any)      { l.log(context.Background(), LevelStdout, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)        { l.log(context.Background(), LevelDebug, msg, args...) }
func (l *Logger) Verbose(msg string, args ...any)      { l.log(context.Background(), LevelVerbose, msg, args...) }
func (l *Logger) HugeVerbose(msg string, args ...any)  { l.log(context.Background(), LevelHugeVerbose, msg, args...) }
func (l *Logger) Info(msg string, args ...any)         { l.log(context.Background(), LevelInfo, msg, args...) }
func (l *Logger) HugeInfo(msg string, args ...any)     { l.log(context.Background(), LevelHugeInfo, msg, args...) }
func (l *Logger) Success(msg string, args ...any)      { l.log(context.Background(), LevelSuccess, msg, args...) }
func (l *Logger) HugeSuccess(msg string, args ...any)  { l.log(context.Background(), LevelHugeSuccess, msg, args...) }

// Warning logs at warning level, attaching err's traceback if non-nil.
func (l *Logger) Warning(err error, msg string, args ...any) {
	l.logWithTrace(context.Background(), LevelWarning, err, msg, args...)
}

func (l *Logger) HugeWarning(err error, msg string, args ...any) {
	l.logWithTrace(context.Background(), LevelHugeWarning, err, msg, args...)
}

func (l *Logger) Error(err error, msg string, args ...any) {
	l.logWithTrace(context.Background(), LevelError, err, msg, args...)
}

func (l *Logger) Critical(err error, msg string, args ...any) {
	l.logWithTrace(context.Background(), LevelCritical, err, msg, args...)
}
