/* pkg/logger/logger.go */

package logger

import (
	"os"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// L returns the global logger, initializing a fallback if necessary.
func L() *zap.Logger {
	if log == nil {
		InitializeWithFallback()
	}
	return log
}

// ParseLogLevel maps a config/env level string to a zapcore level.
func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug", "TRACE", "DEBUG":
		return zapcore.DebugLevel
	case "warn", "warning", "WARN":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	case "fatal", "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// DefaultConsoleEncoderConfig is the encoder used for terminal output.
func DefaultConsoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "T"
	cfg.LevelKey = "L"
	cfg.NameKey = "N"
	cfg.MessageKey = "M"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg
}

// DefaultJSONEncoderConfig is the encoder used for the per-run log file.
// One JSON object per line, ISO-8601 timestamps.
func DefaultJSONEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.LevelKey = "level"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}

// NewFileCore builds a JSON core appending to path at the given minimum level.
// Used by the event bus log-writer consumer; the file sink's level is
// independent of the terminal sink's.
func NewFileCore(path string, level zapcore.Level) (zapcore.Core, func() error, error) {
	if err := EnsureLogDir(path); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, err
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(DefaultJSONEncoderConfig()),
		zapcore.AddSync(f),
		level,
	)
	return core, f.Close, nil
}

// NewConsoleCore builds a console core at the given minimum level.
func NewConsoleCore(level zapcore.Level) zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(DefaultConsoleEncoderConfig()),
		zapcore.Lock(os.Stderr),
		level,
	)
}

// NewFallbackLogger builds a console-only logger for early startup.
func NewFallbackLogger() *zap.Logger {
	core := NewConsoleCore(ParseLogLevel(os.Getenv("LOG_LEVEL")))
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
}

// InitializeWithFallback installs the global logger. Console only; per-run
// file logging is owned by the event bus log writer, not the global logger.
func InitializeWithFallback() {
	log = NewFallbackLogger()
	zap.ReplaceGlobals(log)
	otelzap.ReplaceGlobals(otelzap.New(log, otelzap.WithMinLevel(zapcore.DebugLevel)))
}

// Sync flushes buffered entries. Called before process exit.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
