// Package logger provides a logging capability for gatehouse.
//
// The package keeps a process-wide singleton so that call sites do not need
// to thread a logger through every constructor. Tests that need to capture
// output can swap it with [Set].
package logger

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// singleton is the package-level logger created by Initialize.
// Accessed atomically to be safe for concurrent use across goroutines.
var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	// Set a default logger so callers that skip Initialize() don't panic.
	singleton.Store(zap.NewNop().Sugar())
}

// get returns the current singleton logger.
func get() *zap.SugaredLogger {
	return singleton.Load()
}

// Get returns the underlying *zap.SugaredLogger for injection into structs.
func Get() *zap.SugaredLogger {
	return get()
}

// Set replaces the singleton logger. This is intended for tests that need to
// capture log output; production code should use [Initialize] instead.
func Set(l *zap.SugaredLogger) {
	singleton.Store(l)
}

// Debug logs a message at debug level using the singleton logger.
func Debug(msg string) {
	get().Debug(msg)
}

// Debugf logs a message at debug level using the singleton logger.
func Debugf(msg string, args ...any) {
	get().Debugf(msg, args...)
}

// Debugw logs a message at debug level using the singleton logger with additional key-value pairs.
func Debugw(msg string, keysAndValues ...any) {
	get().Debugw(msg, keysAndValues...)
}

// Info logs a message at info level using the singleton logger.
func Info(msg string) {
	get().Info(msg)
}

// Infof logs a message at info level using the singleton logger.
func Infof(msg string, args ...any) {
	get().Infof(msg, args...)
}

// Infow logs a message at info level using the singleton logger with additional key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	get().Infow(msg, keysAndValues...)
}

// Warn logs a message at warning level using the singleton logger.
func Warn(msg string) {
	get().Warn(msg)
}

// Warnf logs a message at warning level using the singleton logger.
func Warnf(msg string, args ...any) {
	get().Warnf(msg, args...)
}

// Warnw logs a message at warning level using the singleton logger with additional key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	get().Warnw(msg, keysAndValues...)
}

// Error logs a message at error level using the singleton logger.
func Error(msg string) {
	get().Error(msg)
}

// Errorf logs a message at error level using the singleton logger.
func Errorf(msg string, args ...any) {
	get().Errorf(msg, args...)
}

// Errorw logs a message at error level using the singleton logger with additional key-value pairs.
func Errorw(msg string, keysAndValues ...any) {
	get().Errorw(msg, keysAndValues...)
}

// Fatalf logs a message at error level using the singleton logger and exits the program.
func Fatalf(msg string, args ...any) {
	get().Errorf(msg, args...)
	os.Exit(1)
}

// Initialize creates and configures the appropriate logger.
// If the UNSTRUCTURED_LOGS env var is set to true (or unset), it outputs
// plain console text. Otherwise it creates a structured JSON logger.
// The debug level is enabled when the viper "debug" key is set.
func Initialize() {
	level := zapcore.InfoLevel
	if viper.GetBool("debug") {
		level = zapcore.DebugLevel
	}

	var cfg zap.Config
	if unstructuredLogs() {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build()
	if err != nil {
		// zap only fails on invalid config; fall back to a no-op logger.
		singleton.Store(zap.NewNop().Sugar())
		return
	}
	singleton.Store(l.Sugar())
}

func unstructuredLogs() bool {
	unstructured, err := strconv.ParseBool(os.Getenv("UNSTRUCTURED_LOGS"))
	if err != nil {
		// at this point if the error is not nil, the env var wasn't set, or is ""
		// which means we just default to outputting unstructured logs.
		return true
	}
	return unstructured
}
