package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger provides an interface into the underlying logging system for playcore's purposes.
type Logger struct {
	logger       *slog.Logger
	file         *os.File
	traceEnabled bool
}

// Config contains logging information used to set up the logging framework
type Config struct {
	// Log Level.  One of: trace, debug, info, warn, error
	Level string
	// Path to the file to log into.  Empty logs to stderr.
	FilePath string
	// Format is either json (default) or text
	Format string
}

func New(config Config) (*Logger, error) {
	var (
		out  io.Writer = os.Stderr
		file *os.File
	)

	if config.FilePath != "" {
		dir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, err
		}
		file = f
		out = f
	}

	l := NewWithWriter(out, config)
	l.file = file
	return l, nil
}

// NewWithWriter builds a logger that writes to w.  The logger does not own w and Close leaves it open.
func NewWithWriter(w io.Writer, config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(config.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		logger:       slog.New(handler),
		traceEnabled: strings.EqualFold(config.Level, "trace"),
	}
}

// Close the log file, if there is one
func (l *Logger) Close() {
	if l.file == nil {
		return
	}
	err := l.file.Close()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error closing logger: %v\n", err)
	}
}

// Debug logs a message a debug Level
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs a message at info Level
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a message at warn Level
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs a message at error Level.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// parseLogLevel is a helper to convert a string log Level into the slog version.  Defaults to info if a matching log
// Level cannot be found.
func parseLogLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "trace":
		return slog.LevelDebug // Trace level is handled by this log package instead of slog
	default:
		return slog.LevelInfo
	}
}
