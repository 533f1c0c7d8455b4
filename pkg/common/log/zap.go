package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapOptions configure a ZapLogger
type ZapOptions struct {
	Level Level
	// JSON selects the JSON encoder instead of the console encoder
	JSON bool
	// File, when set, sends output to a rotated log file
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Output is used when File is empty. Defaults to stderr.
	Output io.Writer
}

// ZapLogger implements Logger on top of a zap sugared logger
type ZapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
	sink  io.Closer
}

// NewZapLogger builds a zap backed logger
func NewZapLogger(opts ZapOptions) *ZapLogger {
	var (
		ws   zapcore.WriteSyncer
		sink io.Closer
	)
	switch {
	case opts.File != "":
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		ws = zapcore.AddSync(rotator)
		sink = rotator
	case opts.Output != nil:
		ws = zapcore.AddSync(opts.Output)
	default:
		ws = zapcore.Lock(os.Stderr)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	level := zap.NewAtomicLevelAt(toZapLevel(opts.Level))
	core := zapcore.NewCore(enc, ws, level)

	return &ZapLogger{
		sugar: zap.New(core).Sugar(),
		level: level,
		sink:  sink,
	}
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZapLevel(l zapcore.Level) Level {
	switch l {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		return LevelFatal
	default:
		return LevelInfo
	}
}

func format(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Debug logs a debug-level message
func (l *ZapLogger) Debug(msg string, args ...interface{}) {
	if l.level.Enabled(zapcore.DebugLevel) {
		l.sugar.Debug(format(msg, args))
	}
}

// Info logs an info-level message
func (l *ZapLogger) Info(msg string, args ...interface{}) {
	l.sugar.Info(format(msg, args))
}

// Warn logs a warning-level message
func (l *ZapLogger) Warn(msg string, args ...interface{}) {
	l.sugar.Warn(format(msg, args))
}

// Error logs an error-level message
func (l *ZapLogger) Error(msg string, args ...interface{}) {
	l.sugar.Error(format(msg, args))
}

// Fatal logs a fatal-level message and exits
func (l *ZapLogger) Fatal(msg string, args ...interface{}) {
	l.sugar.Fatal(format(msg, args))
}

// WithFields returns a child logger carrying fields
func (l *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	kv := make([]interface{}, 0, 2*len(fields))
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &ZapLogger{sugar: l.sugar.With(kv...), level: l.level, sink: l.sink}
}

// WithField returns a child logger carrying one field
func (l *ZapLogger) WithField(key string, value interface{}) Logger {
	return &ZapLogger{sugar: l.sugar.With(key, value), level: l.level, sink: l.sink}
}

// GetLevel returns the current logging level
func (l *ZapLogger) GetLevel() Level {
	return fromZapLevel(l.level.Level())
}

// SetLevel sets the logging level for this logger and its children
func (l *ZapLogger) SetLevel(level Level) {
	l.level.SetLevel(toZapLevel(level))
}

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// Close flushes and closes the rotated log file, if any
func (l *ZapLogger) Close() error {
	l.sugar.Sync()
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}
