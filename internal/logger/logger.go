// Package logger is the process-wide structured logger. It wraps log/slog
// behind package-level functions so that every package logs through one
// handler whose level and format can be changed at runtime, which the config
// watcher relies on.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

const (
	formatText = "text"
	formatJSON = "json"
)

var levelNames = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

var (
	// level is shared by every handler built below, so SetLevel never needs
	// to rebuild the handler.
	level slog.LevelVar

	mu       sync.RWMutex
	format   = formatText
	output   io.Writer = os.Stdout
	closer   io.Closer
	useColor bool
	slogger  *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	useColor = isTerminal(os.Stdout.Fd())
	reconfigure()
}

// reconfigure rebuilds the handler from the current output and format.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: &level}
	var h slog.Handler
	if format == formatJSON {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// openOutput resolves an output name to a writer. Files are appended to and
// never colored.
func openOutput(name string) (io.Writer, io.Closer, bool, error) {
	switch strings.ToLower(name) {
	case "", "stdout":
		return os.Stdout, nil, isTerminal(os.Stdout.Fd()), nil
	case "stderr":
		return os.Stderr, nil, isTerminal(os.Stderr.Fd()), nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to open log file %q: %w", name, err)
	}
	return f, f, false, nil
}

// Init applies cfg. Empty fields keep their current value. Workers started
// by a launcher log to stderr because stdout carries the ready line.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, c, color, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		setOutput(w, c, color)
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	reconfigure()
	return nil
}

// InitWithWriter sends log output to w. It is meant for tests.
func InitWithWriter(w io.Writer, lvl, f string, enableColor bool) {
	setOutput(w, nil, enableColor)
	if lvl != "" {
		SetLevel(lvl)
	}
	if f != "" {
		SetFormat(f)
	}
	reconfigure()
}

func setOutput(w io.Writer, c io.Closer, color bool) {
	mu.Lock()
	prev := closer
	output, closer, useColor = w, c, color
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	if l, ok := levelNames[strings.ToUpper(name)]; ok {
		level.Set(l)
	}
}

// SetFormat switches between "text" and "json". Unknown formats are ignored.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != formatText && f != formatJSON {
		return
	}
	mu.Lock()
	format = f
	mu.Unlock()
	reconfigure()
}

// CurrentLevel returns the active minimum level name.
func CurrentLevel() string {
	l := level.Level()
	for name, v := range levelNames {
		if v == l {
			return name
		}
	}
	return l.String()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at debug level: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) { logAt(context.Background(), slog.LevelDebug, msg, args) }

// Info logs at info level.
func Info(msg string, args ...any) { logAt(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { logAt(context.Background(), slog.LevelWarn, msg, args) }

// Error logs at error level.
func Error(msg string, args ...any) { logAt(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level, prepending the fields of the LogContext
// carried by ctx (trace, component, procedure, content id).
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelDebug, msg, appendContextFields(ctx, args))
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelInfo, msg, appendContextFields(ctx, args))
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelWarn, msg, appendContextFields(ctx, args))
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelError, msg, appendContextFields(ctx, args))
}

func logAt(ctx context.Context, l slog.Level, msg string, args []any) {
	if l < level.Level() {
		return
	}
	current().Log(ctx, l, msg, args...)
}

// appendContextFields prepends the LogContext fields of ctx to args.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := make([]any, 0, 12+len(args))
	add := func(key, val string) {
		if val != "" {
			fields = append(fields, key, val)
		}
	}
	add(KeyTraceID, lc.TraceID)
	add(KeySpanID, lc.SpanID)
	add(KeyComponent, lc.Component)
	add(KeyProcedure, lc.Procedure)
	if lc.CallUID != 0 {
		fields = append(fields, KeyCallUID, lc.CallUID)
	}
	add(KeyContentID, lc.ContentID)

	return append(fields, args...)
}

// Duration returns milliseconds elapsed since start.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
