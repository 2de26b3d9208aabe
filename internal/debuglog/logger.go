// Package debuglog provides the file-backed debug log shared by every
// command, and routes the standard logger into it.
package debuglog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EnvVar mirrors debug lines to stderr when set to "1".
const EnvVar = "PHASEGATE_DEBUG"

// pkgLogger is the package-level debug logger.
var pkgLogger *DebugLogger
var pkgLoggerMu sync.RWMutex

// DebugLogger appends timestamped lines to a log file and, optionally,
// mirrors them to another writer.
type DebugLogger struct {
	mu     sync.Mutex
	file   *os.File
	mirror io.Writer
}

// NewDebugLogger creates a logger writing to the specified path.
// If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{file: f}
	logger.Log("=== phasegate %s started at %s ===", strings.Join(os.Args[1:], " "), time.Now().Format(time.RFC3339))
	return logger, nil
}

// NopLogger returns a no-op logger for testing or when logging is disabled.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes a timestamped message to the debug log.
// If the logger is nil or has no sink, this is a no-op.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.write(fmt.Sprintf("[%s] %s\n", time.Now().Format("15:04:05.000"), strings.TrimRight(msg, "\n")))
}

// Write implements io.Writer so the standard logger can target the file.
func (l *DebugLogger) Write(p []byte) (int, error) {
	if l == nil {
		return len(p), nil
	}
	l.write(string(p))
	return len(p), nil
}

func (l *DebugLogger) write(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		fmt.Fprint(l.file, line)
	}
	if l.mirror != nil {
		fmt.Fprint(l.mirror, line)
	}
}

// Close closes the log file.
// Safe to call on nil logger or logger without file.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.file.Close()
	l.file = nil
	return err
}

// Install opens the debug log at path, makes it the package logger and
// sends the standard logger to both stderr and the file. When verbose is
// set, debug lines are mirrored to stderr too. A log file that cannot be
// opened degrades to stderr-only logging.
func Install(path string, verbose bool) *DebugLogger {
	logger, err := NewDebugLogger(path)
	if err != nil {
		log.Printf("[debuglog] warning: %v", err)
		logger = NopLogger()
	}
	if verbose {
		logger.mirror = os.Stderr
		log.SetOutput(logger)
	} else {
		log.SetOutput(io.MultiWriter(os.Stderr, logger))
	}

	pkgLoggerMu.Lock()
	pkgLogger = logger
	pkgLoggerMu.Unlock()
	return logger
}

// Verbose reports whether PHASEGATE_DEBUG requests stderr mirroring.
func Verbose() bool {
	return os.Getenv(EnvVar) == "1"
}

// Printf writes a message using the package-level logger.
func Printf(format string, args ...any) {
	pkgLoggerMu.RLock()
	l := pkgLogger
	pkgLoggerMu.RUnlock()

	l.Log(format, args...)
}
