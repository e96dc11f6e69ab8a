// Package logger provides the structured logger shared by every remodel
// command. Records are written through zap and, when a log file is requested,
// rotated by lumberjack.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the minimum severity a Logger emits.
type Level int8

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a textual level into a Level. Unknown values map to
// LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// TraceIDFn extracts a trace identifier from a context.
type TraceIDFn func(ctx context.Context) string

// Logger writes key/value structured records.
type Logger struct {
	sugar     *zap.SugaredLogger
	traceIDFn TraceIDFn
}

// New constructs a Logger writing console-encoded records to w.
func New(w io.Writer, minLevel Level, serviceName string, traceIDFn TraceIDFn) *Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		CallerKey:      "caller",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		minLevel.zapLevel(),
	)

	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if serviceName != "" {
		z = z.With(zap.String("service", serviceName))
	}

	return &Logger{sugar: z.Sugar(), traceIDFn: traceIDFn}
}

// FileConfig controls rotation of a file-backed logger.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// NewFile constructs a Logger appending to the file at cfg.Path. An empty
// path or "-" writes to stdout. The returned closer releases the file.
func NewFile(cfg FileConfig, minLevel Level, serviceName string, traceIDFn TraceIDFn) (*Logger, io.Closer, error) {
	if cfg.Path == "" || cfg.Path == "-" {
		return New(os.Stdout, minLevel, serviceName, traceIDFn), io.NopCloser(nil), nil
	}

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}

	// Fail early on an unwritable path; lumberjack would only report it on
	// the first write.
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.Path, err)
	}
	_ = f.Close()

	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}

	return New(lj, minLevel, serviceName, traceIDFn), lj, nil
}

// Noop returns a Logger that discards everything.
func Noop() *Logger { return &Logger{sugar: zap.NewNop().Sugar()} }

// With returns a child Logger that always includes the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sugar: l.sugar.With(args...), traceIDFn: l.traceIDFn}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.sugar.Debugw(msg, l.withTrace(ctx, args)...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.sugar.Infow(msg, l.withTrace(ctx, args)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.sugar.Warnw(msg, l.withTrace(ctx, args)...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.sugar.Errorw(msg, l.withTrace(ctx, args)...)
}

// Sync flushes buffered records.
func (l *Logger) Sync() error { return l.sugar.Sync() }

func (l *Logger) withTrace(ctx context.Context, args []any) []any {
	if l.traceIDFn == nil || ctx == nil {
		return args
	}
	id := l.traceIDFn(ctx)
	if id == "" {
		return args
	}
	out := make([]any, 0, len(args)+2)
	out = append(out, "trace_id", id)
	return append(out, args...)
}

// LoggerContext accumulates fields over the course of an operation so later
// records carry everything learned so far.
type LoggerContext struct {
	mu     sync.Mutex
	base   *Logger
	fields []any
}

// NewLoggerContext wraps base for operation-scoped logging.
func NewLoggerContext(base *Logger) *LoggerContext {
	return &LoggerContext{base: base}
}

// Add appends key/value pairs to every subsequent record.
func (lc *LoggerContext) Add(args ...any) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.fields = append(lc.fields, args...)
}

func (lc *LoggerContext) snapshot(args []any) []any {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	out := make([]any, 0, len(lc.fields)+len(args))
	out = append(out, lc.fields...)
	return append(out, args...)
}

func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.base.Debug(ctx, msg, lc.snapshot(args)...)
}

func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.base.Info(ctx, msg, lc.snapshot(args)...)
}

func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.base.Warn(ctx, msg, lc.snapshot(args)...)
}

func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.base.Error(ctx, msg, lc.snapshot(args)...)
}
