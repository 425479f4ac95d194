package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger handles debug logging to file and stderr.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	enabled bool
	stderr  io.Writer
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Get returns the default logger instance.
func Get() *Logger {
	once.Do(func() {
		defaultLogger = &Logger{stderr: os.Stderr}
		defaultLogger.init()
	})
	return defaultLogger
}

// New returns a logger writing to w. Used by tests and one-shot commands
// that want log output somewhere other than ~/.mmedit/logs.
func New(w io.Writer, enabled bool) *Logger {
	return &Logger{enabled: enabled, stderr: w, file: nil}
}

func (l *Logger) init() {
	debugEnv := os.Getenv("MMEDIT_DEBUG")

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmedit log: failed to get home dir: %v\n", err)
		return
	}

	debugFile := filepath.Join(home, ".mmedit", "debug")
	_, debugFileErr := os.Stat(debugFile)
	debugFileExists := debugFileErr == nil

	if debugEnv != "1" && !debugFileExists {
		l.enabled = false
		return
	}

	l.enabled = true

	logsDir := filepath.Join(home, ".mmedit", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "mmedit log: failed to create logs dir %s: %v\n", logsDir, err)
		return
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logsDir, fmt.Sprintf("mmedit-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mmedit log: failed to open log file %s: %v\n", logPath, err)
		return
	}

	l.file = file

	if debugEnv == "1" {
		l.logf("INFO", "Logging started (MMEDIT_DEBUG=1)")
	} else {
		l.logf("INFO", "Logging started (~/.mmedit/debug exists)")
	}
	l.logf("INFO", "Log file: %s", logPath)
}

// Enabled returns whether debug logging is enabled.
func (l *Logger) Enabled() bool {
	return l.enabled
}

func (l *Logger) sink() io.Writer {
	if l.file != nil {
		return l.file
	}
	if l.enabled && l.stderr != nil && l.stderr != os.Stderr {
		return l.stderr
	}
	return nil
}

func (l *Logger) logf(level, format string, args ...any) {
	w := l.sink()
	if w == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "[%s] %s [mmedit]: %s\n", timestamp, level, msg)
}

// Debug logs a debug message (file only).
func (l *Logger) Debug(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.logf("DEBUG", format, args...)
}

// Info logs an info message (file only).
func (l *Logger) Info(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.logf("INFO", format, args...)
}

// Warn logs a warning (file only). Used for recoverable failures such as a
// missing remote config.
func (l *Logger) Warn(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.logf("WARN", format, args...)
}

// Error logs an error message (file and stderr).
func (l *Logger) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.stderr != nil {
		fmt.Fprintf(l.stderr, "mmedit error: %s\n", msg)
	}
	if l.enabled {
		l.logf("ERROR", format, args...)
	}
}

// Request logs an incoming protocol command.
func (l *Logger) Request(action string, raw string) {
	if !l.enabled {
		return
	}
	l.logf("REQ", "[%s] %s", action, truncate(raw, 500))
}

// Response logs an outgoing protocol event.
func (l *Logger) Response(msgType string, raw string) {
	if !l.enabled {
		return
	}
	l.logf("RESP", "[%s] %s", msgType, truncate(raw, 500))
}

// Stream logs a decoded stream record.
func (l *Logger) Stream(eventType string, content string) {
	if !l.enabled {
		return
	}
	l.logf("STREAM", "[%s] %s", eventType, truncate(content, 200))
}

// Push logs a push-channel notification.
func (l *Logger) Push(msgType string, path string) {
	if !l.enabled {
		return
	}
	l.logf("PUSH", "[%s] %s", msgType, path)
}

// Close closes the log file.
func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
	}
}

// Writer returns an io.Writer for the log file (for external use).
func (l *Logger) Writer() io.Writer {
	if w := l.sink(); w != nil {
		return w
	}
	return io.Discard
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
