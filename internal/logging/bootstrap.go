package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gatewaykit/z2m-provision/internal/types"
)

// BootstrapLogger covers the window before the configuration is loaded and
// the real logger exists. It prints plainly to the console right away and
// records every line so Flush can hand them to the Logger for the log file.
type BootstrapLogger struct {
	mu       sync.Mutex
	level    types.LogLevel
	recorded []string
}

// NewBootstrapLogger creates a bootstrap logger at INFO level.
func NewBootstrapLogger() *BootstrapLogger {
	return &BootstrapLogger{level: types.LogLevelInfo}
}

// SetLevel adjusts the verbosity once the configured level is known.
func (b *BootstrapLogger) SetLevel(level types.LogLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = level
}

// Println prints an unleveled line.
func (b *BootstrapLogger) Println(message string) {
	b.emit(os.Stdout, "", message)
}

// Printf prints an unleveled formatted line.
func (b *BootstrapLogger) Printf(format string, args ...interface{}) {
	b.emit(os.Stdout, "", fmt.Sprintf(format, args...))
}

// Info prints an INFO line.
func (b *BootstrapLogger) Info(format string, args ...interface{}) {
	b.leveled(types.LogLevelInfo, "INFO", format, args...)
}

// Warning prints a WARNING line.
func (b *BootstrapLogger) Warning(format string, args ...interface{}) {
	b.leveled(types.LogLevelWarning, "WARNING", format, args...)
}

// Error prints an ERROR line to stderr.
func (b *BootstrapLogger) Error(format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	message := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, message)
	b.record("ERROR", message)
}

// Flush hands all recorded lines to the logger so they end up in the log
// file once it is opened. The bootstrap logger keeps working afterwards.
func (b *BootstrapLogger) Flush(logger *Logger) {
	if logger == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range b.recorded {
		logger.absorb(line)
	}
	b.recorded = nil
}

func (b *BootstrapLogger) leveled(level types.LogLevel, tag, format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if level > b.level {
		return
	}
	message := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stdout, message)
	b.record(tag, message)
}

func (b *BootstrapLogger) emit(out *os.File, tag, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(out, message)
	b.record(tag, message)
}

func (b *BootstrapLogger) record(tag, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	if tag == "" {
		b.recorded = append(b.recorded, fmt.Sprintf("[%s] %s\n", timestamp, message))
		return
	}
	b.recorded = append(b.recorded, fmt.Sprintf("[%s] %s: %s\n", timestamp, tag, message))
}
