// Package log provides the logging interface shared by the descent host,
// its gRPC service and the command line tools.
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the logging level
type Level int

const (
	// LevelDebug level for per-page and per-lookup detail
	LevelDebug Level = iota
	// LevelInfo level for general operational information
	LevelInfo
	// LevelWarn level for corrupt pages and exhausted walks
	LevelWarn
	// LevelError level for failures that abort a request
	LevelError
	// LevelFatal level for errors that stop the process
	LevelFatal
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// ParseLevel parses a level name such as "debug" or "WARN"
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger interface defines the methods for logging at different levels
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// Fatal logs and then calls os.Exit(1)
	Fatal(msg string, args ...interface{})
	// WithFields returns a new logger with the given fields added to the context
	WithFields(fields map[string]interface{}) Logger
	// WithField returns a new logger with the given field added to the context
	WithField(key string, value interface{}) Logger
	GetLevel() Level
	SetLevel(level Level)
}

// StandardLogger writes one plain text line per entry. Fields are written in
// key order so output is stable.
type StandardLogger struct {
	mu     *sync.Mutex
	level  *Level
	out    io.Writer
	fields []field
}

type field struct {
	key   string
	value interface{}
}

// LoggerOption is a function that configures a StandardLogger
type LoggerOption func(*StandardLogger)

// WithLevel sets the logging level
func WithLevel(level Level) LoggerOption {
	return func(l *StandardLogger) {
		*l.level = level
	}
}

// WithOutput sets the output writer
func WithOutput(out io.Writer) LoggerOption {
	return func(l *StandardLogger) {
		l.out = out
	}
}

// WithInitialFields sets initial fields for the logger
func WithInitialFields(fields map[string]interface{}) LoggerOption {
	return func(l *StandardLogger) {
		l.fields = mergeFields(l.fields, fields)
	}
}

// NewStandardLogger creates a new StandardLogger with the given options
func NewStandardLogger(options ...LoggerOption) *StandardLogger {
	level := LevelInfo
	logger := &StandardLogger{
		mu:    &sync.Mutex{},
		level: &level,
		out:   os.Stderr,
	}
	for _, option := range options {
		option(logger)
	}
	return logger
}

func mergeFields(base []field, add map[string]interface{}) []field {
	merged := make([]field, 0, len(base)+len(add))
	for _, f := range base {
		if _, replaced := add[f.key]; !replaced {
			merged = append(merged, f)
		}
	}
	for k, v := range add {
		merged = append(merged, field{key: k, value: v})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].key < merged[j].key })
	return merged
}

func (l *StandardLogger) log(level Level, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < *l.level {
		return
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" ")
	sb.WriteString(level.String())
	sb.WriteString(" ")
	sb.WriteString(msg)
	for _, f := range l.fields {
		fmt.Fprintf(&sb, " %s=%v", f.key, f.value)
	}
	sb.WriteString("\n")
	io.WriteString(l.out, sb.String())

	if level == LevelFatal {
		os.Exit(1)
	}
}

// Debug logs a debug-level message
func (l *StandardLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info-level message
func (l *StandardLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning-level message
func (l *StandardLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error-level message
func (l *StandardLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Fatal logs a fatal-level message and then calls os.Exit(1)
func (l *StandardLogger) Fatal(msg string, args ...interface{}) {
	l.log(LevelFatal, msg, args...)
}

// WithFields returns a child logger sharing this logger's output and level
func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	return &StandardLogger{
		mu:     l.mu,
		level:  l.level,
		out:    l.out,
		fields: mergeFields(l.fields, fields),
	}
}

// WithField returns a new logger with the given field added to the context
func (l *StandardLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// GetLevel returns the current logging level
func (l *StandardLogger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.level
}

// SetLevel sets the logging level for this logger and its children
func (l *StandardLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = NewStandardLogger()
)

// SetDefaultLogger replaces the logger used by the package level functions
func SetDefaultLogger(logger Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// GetDefaultLogger returns the default logger instance
func GetDefaultLogger() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Debug logs a debug-level message to the default logger
func Debug(msg string, args ...interface{}) {
	GetDefaultLogger().Debug(msg, args...)
}

// Info logs an info-level message to the default logger
func Info(msg string, args ...interface{}) {
	GetDefaultLogger().Info(msg, args...)
}

// Warn logs a warning-level message to the default logger
func Warn(msg string, args ...interface{}) {
	GetDefaultLogger().Warn(msg, args...)
}

// Error logs an error-level message to the default logger
func Error(msg string, args ...interface{}) {
	GetDefaultLogger().Error(msg, args...)
}

// Fatal logs a fatal-level message to the default logger and exits
func Fatal(msg string, args ...interface{}) {
	GetDefaultLogger().Fatal(msg, args...)
}

// WithFields returns a child of the default logger
func WithFields(fields map[string]interface{}) Logger {
	return GetDefaultLogger().WithFields(fields)
}

// WithField returns a child of the default logger
func WithField(key string, value interface{}) Logger {
	return GetDefaultLogger().WithField(key, value)
}

// SetLevel sets the logging level of the default logger
func SetLevel(level Level) {
	GetDefaultLogger().SetLevel(level)
}
