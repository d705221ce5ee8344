// Package logger is the logrus setup shared by every bridge component.
// Messages take trailing key/value pairs:
//
//	log.Info("Poll cycle finished", "gardens", 2)
//	log.WithGardenID(42).Warn("Garden is offline")
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with convenience methods
type Logger struct {
	*logrus.Logger
}

// New creates a logger writing to stderr with the given level and format
func New(level, format string) (*Logger, error) {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter creates a new logger with custom output writer
func NewWithWriter(level, format string, out io.Writer) (*Logger, error) {
	log := logrus.New()

	parsedLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}
	log.SetLevel(parsedLevel)
	log.SetOutput(out)

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be 'json' or 'text')", format)
	}

	return &Logger{log}, nil
}

// Discard returns a logger that drops everything. Used when a component
// is constructed without a logger.
func Discard() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return &Logger{log}
}

// OrDiscard returns l, or a discarding logger when l is nil
func OrDiscard(l *Logger) *Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// With returns an entry carrying the given key/value pairs
func (l *Logger) With(kv ...interface{}) *logrus.Entry {
	return l.entry(kv)
}

// WithRequestID returns a logger entry with request ID context
func (l *Logger) WithRequestID(requestID string) *logrus.Entry {
	return l.WithField("request_id", requestID)
}

// WithError returns a logger entry with error context
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.WithField("error", err.Error())
}

// WithGardenID returns a logger entry with garden ID context
func (l *Logger) WithGardenID(gardenID int64) *logrus.Entry {
	return l.WithField("garden_id", gardenID)
}

// Info logs an info level message
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.entry(fields).Info(msg)
}

// Debug logs a debug level message
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.entry(fields).Debug(msg)
}

// Warn logs a warning level message
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.entry(fields).Warn(msg)
}

// Error logs an error level message
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.entry(fields).Error(msg)
}

func (l *Logger) entry(fields []interface{}) *logrus.Entry {
	return l.Logger.WithFields(toFields(fields))
}

// toFields converts variadic key-value pairs to logrus.Fields
func toFields(args []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(args)-1; i += 2 {
		key := fmt.Sprintf("%v", args[i])
		fields[key] = args[i+1]
	}
	return fields
}
