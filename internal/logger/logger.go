// Package logger provides the structured logger used across the server.
// It wraps zap behind a small package-level API so call sites stay terse.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.SugaredLogger = newLogger(zapcore.InfoLevel, false)
)

// Initialize configures the process-wide logger. The log level is read from
// the GITION_LOG_LEVEL environment variable (debug, info, warn, error);
// unstructured mode uses the zap development console encoder instead of JSON.
func Initialize(unstructured bool) {
	level := parseLevel(os.Getenv("GITION_LOG_LEVEL"))

	mu.Lock()
	defer mu.Unlock()
	log = newLogger(level, unstructured)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newLogger(level zapcore.Level, unstructured bool) *zap.SugaredLogger {
	var encoder zapcore.Encoder
	if unstructured {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	// Logs go to stderr so stdout stays clean for commands that emit data.
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCallerSkip(1)).Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debug logs a message at debug level.
func Debug(args ...any) { current().Debug(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { current().Debugf(format, args...) }

// Info logs a message at info level.
func Info(args ...any) { current().Info(args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { current().Infof(format, args...) }

// Warn logs a message at warn level.
func Warn(args ...any) { current().Warn(args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { current().Warnf(format, args...) }

// Error logs a message at error level.
func Error(args ...any) { current().Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { current().Errorf(format, args...) }

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, args ...any) { current().Fatalf(format, args...) }
