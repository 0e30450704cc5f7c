package redisserver

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordCommandProcessed records a processed command with its duration
	RecordCommandProcessed(cmd string, duration time.Duration)

	// RecordConnection records an accepted client connection
	RecordConnection()

	// RecordKeyCount records the current number of keys
	RecordKeyCount(count int64)

	// RecordError records an error event
	RecordError(errorType string)
}

// LogLevel selects which messages the default logger prints
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelError
)

// ParseLogLevel parses "debug", "info" or "error"
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// defaultLogger is a simple logger implementation using the standard log package
type defaultLogger struct {
	level LogLevel
}

func (l *defaultLogger) Debug(msg string, fields ...Field) {
	if l.level <= LogLevelDebug {
		l.logWithFields("DEBUG", msg, fields...)
	}
}

func (l *defaultLogger) Info(msg string, fields ...Field) {
	if l.level <= LogLevelInfo {
		l.logWithFields("INFO", msg, fields...)
	}
}

func (l *defaultLogger) Error(msg string, fields ...Field) {
	l.logWithFields("ERROR", msg, fields...)
}

func (l *defaultLogger) logWithFields(level, msg string, fields ...Field) {
	logMsg := level + ": " + msg
	for _, field := range fields {
		logMsg += " " + field.Key + "=" + formatValue(field.Value)
	}
	log.Println(logMsg)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", val)
	}
}
