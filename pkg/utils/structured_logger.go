package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LogFormat defines the output format for logs
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

// String returns the configuration name of the format.
func (f LogFormat) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseLogFormat parses "text" (or "console") and "json".
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(format) {
	case "", "text", "console":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid log format: %s", format)
	}
}

// StructuredLogger provides leveled logging with context fields on top of
// zerolog.
type StructuredLogger struct {
	zl     zerolog.Logger
	closer io.Closer
}

// StructuredLoggerConfig holds configuration for the logger
type StructuredLoggerConfig struct {
	Level         LogLevel
	Output        io.Writer
	Format        LogFormat
	IncludeCaller bool
	// File, when set, receives the log instead of Output.
	File string
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() *StructuredLoggerConfig {
	return &StructuredLoggerConfig{
		Level:  INFO,
		Output: os.Stderr,
		Format: FormatText,
	}
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(config *StructuredLoggerConfig) (*StructuredLogger, error) {
	if config == nil {
		config = DefaultStructuredLoggerConfig()
	}

	logger := &StructuredLogger{}

	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	if config.File != "" {
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		logger.closer = file
	}

	if config.Format == FormatText {
		output = zerolog.ConsoleWriter{
			Out:        output,
			NoColor:    true,
			TimeFormat: "2006-01-02 15:04:05.000",
		}
	}

	zctx := zerolog.New(output).Level(config.Level.zerolog()).With().Timestamp()
	if config.IncludeCaller {
		zctx = zctx.Caller()
	}
	logger.zl = zctx.Logger()
	return logger, nil
}

// NopLogger returns a logger that discards everything.
func NopLogger() *StructuredLogger {
	return &StructuredLogger{zl: zerolog.Nop()}
}

// Zerolog exposes the underlying zerolog logger.
func (sl *StructuredLogger) Zerolog() zerolog.Logger {
	return sl.zl
}

// WithField returns a new logger with an additional context field
func (sl *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	return &StructuredLogger{zl: sl.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a new logger with multiple context fields
func (sl *StructuredLogger) WithFields(fields map[string]interface{}) *StructuredLogger {
	return &StructuredLogger{zl: sl.zl.With().Fields(fields).Logger()}
}

// WithComponent returns a logger with a component field
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return &StructuredLogger{zl: sl.zl.With().Str("component", component).Logger()}
}

// WithError returns a logger carrying err in the error field
func (sl *StructuredLogger) WithError(err error) *StructuredLogger {
	return &StructuredLogger{zl: sl.zl.With().Err(err).Logger()}
}

// SetLevel returns a copy of the logger filtering below level
func (sl *StructuredLogger) SetLevel(level LogLevel) *StructuredLogger {
	return &StructuredLogger{zl: sl.zl.Level(level.zerolog()), closer: sl.closer}
}

// GetLevel returns the current log level
func (sl *StructuredLogger) GetLevel() LogLevel {
	return fromZerolog(sl.zl.GetLevel())
}

func (sl *StructuredLogger) log(evt *zerolog.Event, message string, fieldMaps []map[string]interface{}) {
	if len(fieldMaps) > 0 && fieldMaps[0] != nil {
		evt = evt.Fields(fieldMaps[0])
	}
	evt.Msg(message)
}

// Debug logs a debug message
func (sl *StructuredLogger) Debug(message string, fields ...map[string]interface{}) {
	sl.log(sl.zl.Debug(), message, fields)
}

// Info logs an info message
func (sl *StructuredLogger) Info(message string, fields ...map[string]interface{}) {
	sl.log(sl.zl.Info(), message, fields)
}

// Warn logs a warning message
func (sl *StructuredLogger) Warn(message string, fields ...map[string]interface{}) {
	sl.log(sl.zl.Warn(), message, fields)
}

// Error logs an error message
func (sl *StructuredLogger) Error(message string, fields ...map[string]interface{}) {
	sl.log(sl.zl.Error(), message, fields)
}

// Debugf logs a formatted debug message
func (sl *StructuredLogger) Debugf(format string, args ...interface{}) {
	sl.zl.Debug().Msgf(format, args...)
}

// Infof logs a formatted info message
func (sl *StructuredLogger) Infof(format string, args ...interface{}) {
	sl.zl.Info().Msgf(format, args...)
}

// Warnf logs a formatted warning message
func (sl *StructuredLogger) Warnf(format string, args ...interface{}) {
	sl.zl.Warn().Msgf(format, args...)
}

// Errorf logs a formatted error message
func (sl *StructuredLogger) Errorf(format string, args ...interface{}) {
	sl.zl.Error().Msgf(format, args...)
}

// Close closes the log file, if the logger opened one
func (sl *StructuredLogger) Close() error {
	if sl.closer != nil {
		return sl.closer.Close()
	}
	return nil
}
