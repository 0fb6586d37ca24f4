package log

import "sync/atomic"

// defaultLogger backs the package level functions
var defaultLogger atomic.Pointer[Logger]

// SetDefaultLogger sets the logger used by the functions exported by this package.  nil turns logging off, which is
// also the state before any logger is set.
func SetDefaultLogger(logger *Logger) {
	defaultLogger.Store(logger)
}

// DefaultLogger returns the current default logger, or nil
func DefaultLogger() *Logger {
	return defaultLogger.Load()
}

// TraceEnabled reports whether Trace output is kept.  Hot paths check it before converting payloads to strings.
func TraceEnabled() bool {
	logger := DefaultLogger()
	return logger != nil && logger.traceEnabled
}

// Debug logs at debug Level using the default logger.
// See (*Logger).Debug for more information.
func Debug(msg string, args ...any) {
	if logger := DefaultLogger(); logger != nil {
		logger.Debug(msg, args...)
	}
}

// Info logs at info Level using the default logger.
func Info(msg string, args ...any) {
	if logger := DefaultLogger(); logger != nil {
		logger.Info(msg, args...)
	}
}

// Warn logs at warn Level using the default logger.
func Warn(msg string, args ...any) {
	if logger := DefaultLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

// Error logs at error Level using the default logger.
func Error(msg string, args ...any) {
	if logger := DefaultLogger(); logger != nil {
		logger.Error(msg, args...)
	}
}

// Trace logs at debug level with a TRACE prefix, only when the configured level is trace.  Used for per-frame and
// per-event output that would drown everything else at debug.
func Trace(msg string, args ...any) {
	if TraceEnabled() {
		DefaultLogger().Debug("TRACE: "+msg, args...)
	}
}
