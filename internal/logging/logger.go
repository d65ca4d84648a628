package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gatewaykit/z2m-provision/internal/types"
)

// ANSI color codes used when colored output is enabled.
const (
	colorReset   = "\033[0m"
	colorCyan    = "\033[36m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorRed     = "\033[31m"
	colorBoldRed = "\033[1;31m"
	colorBlue    = "\033[1;34m"
	colorGray    = "\033[90m"
)

// Logger is a leveled logger writing timestamped lines to an output stream
// and, optionally, mirroring them to a per-run log file.
type Logger struct {
	mu       sync.Mutex
	level    types.LogLevel
	useColor bool
	output   io.Writer

	logFile     *os.File
	logFilePath string

	// pending holds lines emitted before the log file was opened so they
	// can be replayed into it.
	pending []string
}

// New creates a logger writing to stdout.
func New(level types.LogLevel, useColor bool) *Logger {
	return &Logger{
		level:    level,
		useColor: useColor,
		output:   os.Stdout,
	}
}

// SetOutput replaces the output stream.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetLevel changes the logging verbosity.
func (l *Logger) SetLevel(level types.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging verbosity.
func (l *Logger) GetLevel() types.LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// OpenLogFile starts mirroring log lines to the given file. Lines logged
// before the file was opened are written first.
func (l *Logger) OpenLogFile(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}

	for _, line := range l.pending {
		fmt.Fprint(file, line)
	}
	l.pending = nil
	l.logFile = file
	l.logFilePath = path
	return nil
}

// CloseLogFile stops mirroring and closes the log file.
func (l *Logger) CloseLogFile() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	l.logFilePath = ""
	return err
}

// GetLogFilePath returns the path of the open log file, or "" when logging
// to the output stream only.
func (l *Logger) GetLogFilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logFilePath
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(types.LogLevelDebug, "DEBUG", colorCyan, format, args...)
}

// Info logs a message at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(types.LogLevelInfo, "INFO", colorGreen, format, args...)
}

// Warning logs a message at WARNING level.
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(types.LogLevelWarning, "WARNING", colorYellow, format, args...)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(types.LogLevelError, "ERROR", colorRed, format, args...)
}

// Critical logs a message at CRITICAL level.
func (l *Logger) Critical(format string, args ...interface{}) {
	l.log(types.LogLevelCritical, "CRITICAL", colorBoldRed, format, args...)
}

// Phase logs a stage separator line at INFO level.
func (l *Logger) Phase(format string, args ...interface{}) {
	l.log(types.LogLevelInfo, "PHASE", colorBlue, format, args...)
}

// Skip logs a skipped-step line at INFO level.
func (l *Logger) Skip(format string, args ...interface{}) {
	l.log(types.LogLevelInfo, "SKIP", colorGray, format, args...)
}

func (l *Logger) log(level types.LogLevel, tag, color, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	plain := fmt.Sprintf("[%s] %s: %s\n", timestamp, tag, message)

	if l.useColor {
		fmt.Fprintf(l.output, "[%s] %s%s%s: %s\n", timestamp, color, tag, colorReset, message)
	} else {
		fmt.Fprint(l.output, plain)
	}

	// The log file always receives the uncolored line.
	if l.logFile != nil {
		fmt.Fprint(l.logFile, plain)
	} else {
		l.pending = append(l.pending, plain)
	}
}

// absorb records an already formatted line for the log file without writing
// it to the output stream. Used when flushing the bootstrap logger.
func (l *Logger) absorb(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		fmt.Fprint(l.logFile, line)
	} else {
		l.pending = append(l.pending, line)
	}
}

var (
	defaultLogger   = New(types.LogLevelInfo, false)
	defaultLoggerMu sync.RWMutex
)

// SetDefaultLogger replaces the package-level logger used by the
// package-level logging functions.
func SetDefaultLogger(logger *Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = logger
}

// GetDefaultLogger returns the package-level logger.
func GetDefaultLogger() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// Debug logs at DEBUG level on the default logger.
func Debug(format string, args ...interface{}) {
	GetDefaultLogger().Debug(format, args...)
}

// Info logs at INFO level on the default logger.
func Info(format string, args ...interface{}) {
	GetDefaultLogger().Info(format, args...)
}

// Warning logs at WARNING level on the default logger.
func Warning(format string, args ...interface{}) {
	GetDefaultLogger().Warning(format, args...)
}

// Error logs at ERROR level on the default logger.
func Error(format string, args ...interface{}) {
	GetDefaultLogger().Error(format, args...)
}

// Critical logs at CRITICAL level on the default logger.
func Critical(format string, args ...interface{}) {
	GetDefaultLogger().Critical(format, args...)
}
