package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel represents an enumeration of log levels
type LogLevel int

const (
	Error   LogLevel = 40
	Warning LogLevel = 30
	Info    LogLevel = 20
	Debug   LogLevel = 10
	NotSet  LogLevel = 0
)

var defaultLevel atomic.Int32

func init() {
	defaultLevel.Store(int32(Warning))
}

// SetDefaultLogLevel sets the level used by loggers created without an explicit level.
func SetDefaultLogLevel(level LogLevel) {
	defaultLevel.Store(int32(level))
}

// ParseLogLevel maps debug|info|warn|error to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn", "warning":
		return Warning, nil
	case "error":
		return Error, nil
	}
	return NotSet, fmt.Errorf("unknown log level %q", s)
}

// Logger provides structured logging with context
type Logger struct {
	prefix        string
	logger        *log.Logger
	logLevel      LogLevel
	logLevelMutex sync.Mutex
}

// NewLogger creates a new logger with a given prefix
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	level := LogLevel(defaultLevel.Load())
	if len(logLevel) > 0 {
		level = logLevel[0]
	}
	return newLoggerTo(os.Stdout, prefix, level)
}

func newLoggerTo(w io.Writer, prefix string, level LogLevel) *Logger {
	return &Logger{
		prefix:   prefix,
		logger:   log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		logLevel: level,
	}
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.logLevelMutex.Lock()
	defer l.logLevelMutex.Unlock()
	l.logLevel = logLevel
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(Info, "INFO", msg, keyvals...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(Error, "ERROR", msg, keyvals...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(Warning, "WARN", msg, keyvals...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(Debug, "DEBUG", msg, keyvals...)
}

func (l *Logger) log(level LogLevel, label, msg string, keyvals ...interface{}) {
	l.logLevelMutex.Lock()
	defer l.logLevelMutex.Unlock()
	if l.logLevel > level {
		return
	}
	l.logger.Println(formatMessage(label, msg, keyvals...))
}

// formatMessage formats a message with key-value pairs
func formatMessage(level, msg string, keyvals ...interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
	}
	if len(keyvals)%2 == 1 {
		fmt.Fprintf(&b, " %v=(missing)", keyvals[len(keyvals)-1])
	}
	return b.String()
}
