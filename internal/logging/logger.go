// Package logging provides the leveled logger used across blocksave.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tis24dev/blocksave/internal/types"
)

// Logger handles application logging.
type Logger struct {
	mu           sync.Mutex
	level        types.LogLevel
	useColor     bool
	output       io.Writer
	timeFormat   string
	logFile      *os.File // Session log file (optional)
	warningCount int64
	errorCount   int64
}

// New creates a new logger.
func New(level types.LogLevel, useColor bool) *Logger {
	return &Logger{
		level:      level,
		useColor:   useColor,
		output:     os.Stdout,
		timeFormat: "2006-01-02 15:04:05",
	}
}

// SetOutput sets the logger output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w == nil {
		l.output = os.Stdout
		return
	}
	l.output = w
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level types.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// OpenLogFile opens a session log file and starts real-time writing.
func (l *Logger) OpenLogFile(logPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		l.logFile.Close()
	}

	// O_SYNC forces immediate writes to disk so the log survives a mid-stream crash.
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	l.logFile = file
	return nil
}

// CloseLogFile closes the session log file.
func (l *Logger) CloseLogFile() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return nil
	}

	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// GetLogFilePath returns the path of the currently open log file (or "" if none).
func (l *Logger) GetLogFilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return ""
	}
	return l.logFile.Name()
}

// UsesColor returns whether color output is enabled.
func (l *Logger) UsesColor() bool {
	return l.useColor
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() types.LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// log is the internal method used to write logs.
func (l *Logger) log(level types.LogLevel, format string, args ...interface{}) {
	l.logWithLabel(level, "", "", format, args...)
}

func (l *Logger) logWithLabel(level types.LogLevel, label string, colorOverride string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}

	// Track warning/error counters for the final verdict
	switch level {
	case types.LogLevelWarning:
		l.warningCount++
	case types.LogLevelError, types.LogLevelCritical:
		l.errorCount++
	}

	timestamp := time.Now().Format(l.timeFormat)
	levelStr := level.String()
	if label != "" {
		levelStr = label
	}
	message := fmt.Sprintf(format, args...)

	var colorCode string
	var resetCode string

	if l.useColor {
		resetCode = "\033[0m"
		if colorOverride != "" {
			colorCode = colorOverride
		} else {
			switch level {
			case types.LogLevelDebug:
				colorCode = "\033[36m" // Cyan
			case types.LogLevelInfo:
				colorCode = "\033[32m" // Green
			case types.LogLevelWarning:
				colorCode = "\033[33m" // Yellow
			case types.LogLevelError:
				colorCode = "\033[31m" // Red
			case types.LogLevelCritical:
				colorCode = "\033[1;31m" // Bold Red
			}
		}
	}

	outputStdout := fmt.Sprintf("[%s] %s%-8s%s %s\n",
		timestamp,
		colorCode,
		levelStr,
		resetCode,
		message,
	)

	// File copy is written without colors.
	outputFile := fmt.Sprintf("[%s] %-8s %s\n",
		timestamp,
		levelStr,
		message,
	)

	fmt.Fprint(l.output, outputStdout)

	if l.logFile != nil {
		fmt.Fprint(l.logFile, outputFile)
	}
}

// HasWarnings returns true if at least one warning was logged.
func (l *Logger) HasWarnings() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warningCount > 0
}

// HasErrors returns true if at least one error or critical message was logged.
func (l *Logger) HasErrors() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errorCount > 0
}

// Debug writes a debug log.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(types.LogLevelDebug, format, args...)
}

// Info writes an informational log
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(types.LogLevelInfo, format, args...)
}

// Step writes an informational log with STEP label (to highlight sequential activities)
func (l *Logger) Step(format string, args ...interface{}) {
	if l == nil {
		return
	}
	colorOverride := ""
	if l.useColor {
		colorOverride = "\033[34m"
	}
	l.logWithLabel(types.LogLevelInfo, "STEP", colorOverride, format, args...)
}

// Skip writes an informational log with SKIP label (for disabled/ignored elements)
func (l *Logger) Skip(format string, args ...interface{}) {
	if l == nil {
		return
	}
	colorOverride := ""
	if l.useColor {
		colorOverride = "\033[35m"
	}
	l.logWithLabel(types.LogLevelInfo, "SKIP", colorOverride, format, args...)
}

// Warning writes a warning log.
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(types.LogLevelWarning, format, args...)
}

// Error writes an error log.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(types.LogLevelError, format, args...)
}

// Critical writes a critical log.
func (l *Logger) Critical(format string, args ...interface{}) {
	l.log(types.LogLevelCritical, format, args...)
}

