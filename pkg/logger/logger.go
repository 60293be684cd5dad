// Package logger provides the logging interface shared by the warpfetch
// transport engine, request scheduler and command line front-end.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Logger defines the interface for structured logging across all warpfetch components.
type Logger interface {
	// Debug logs transfer-level diagnostics (enabled by verbose requests).
	Debug(format string, args ...interface{})

	// Info logs an informational message (e.g., "session started").
	Info(format string, args ...interface{})

	// Warning logs a warning message (e.g., "request dropped before admission").
	Warning(format string, args ...interface{})

	// Error logs an error message (e.g., "multi add failed: bad handle").
	Error(format string, args ...interface{})

	// Close releases resources held by the logger.
	// Safe to call multiple times. Returns nil for loggers without resources.
	Close() error
}

// ZerologLogger writes leveled log lines through a zerolog.Logger.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger creates a console-formatted logger writing to w.
// Debug lines are only emitted when debug is true.
func NewZerologLogger(w io.Writer, debug bool) *ZerologLogger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(w),
	}
	return &ZerologLogger{
		zl: zerolog.New(out).Level(level).With().Timestamp().Logger(),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// NewZerologLoggerFrom wraps an already configured zerolog.Logger.
func NewZerologLoggerFrom(zl zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{zl: zl}
}

// With returns a child logger tagging every line with component=name.
func (z *ZerologLogger) With(component string) *ZerologLogger {
	return &ZerologLogger{zl: z.zl.With().Str("component", component).Logger()}
}

func (z *ZerologLogger) Debug(format string, args ...interface{}) {
	z.zl.Debug().Msgf(format, args...)
}

func (z *ZerologLogger) Info(format string, args ...interface{}) {
	z.zl.Info().Msgf(format, args...)
}

func (z *ZerologLogger) Warning(format string, args ...interface{}) {
	z.zl.Warn().Msgf(format, args...)
}

func (z *ZerologLogger) Error(format string, args ...interface{}) {
	z.zl.Error().Msgf(format, args...)
}

// Close is a no-op; the underlying writer is owned by the caller.
func (z *ZerologLogger) Close() error {
	return nil
}

// NopLogger is a logger that discards all messages.
// Useful for testing or when logging should be disabled.
type NopLogger struct{}

// NewNopLogger creates a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(format string, args ...interface{})   {}
func (n *NopLogger) Info(format string, args ...interface{})    {}
func (n *NopLogger) Warning(format string, args ...interface{}) {}
func (n *NopLogger) Error(format string, args ...interface{})   {}

// Close is a no-op.
func (n *NopLogger) Close() error {
	return nil
}

// Ensure implementations satisfy the Logger interface.
var (
	_ Logger = (*ZerologLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)

// MockLogger implements Logger for testing purposes.
// It records all log calls for verification in tests. Engine goroutines may
// log concurrently, so every access goes through mu.
type MockLogger struct {
	mu           sync.Mutex
	DebugCalls   []string
	InfoCalls    []string
	WarningCalls []string
	ErrorCalls   []string
	CloseCalled  bool
}

// NewMockLogger creates a new MockLogger for testing.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		DebugCalls:   make([]string, 0),
		InfoCalls:    make([]string, 0),
		WarningCalls: make([]string, 0),
		ErrorCalls:   make([]string, 0),
	}
}

func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DebugCalls = append(m.DebugCalls, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InfoCalls = append(m.InfoCalls, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WarningCalls = append(m.WarningCalls, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorCalls = append(m.ErrorCalls, fmt.Sprintf(format, args...))
}

// Close records that Close was called.
func (m *MockLogger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled = true
	return nil
}

// Errors returns a copy of the recorded error lines.
func (m *MockLogger) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ErrorCalls...)
}

// Warnings returns a copy of the recorded warning lines.
func (m *MockLogger) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.WarningCalls...)
}

// Ensure MockLogger satisfies the Logger interface.
var _ Logger = (*MockLogger)(nil)

// Debugs returns a copy of the recorded debug lines.
func (m *MockLogger) Debugs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.DebugCalls...)
}
