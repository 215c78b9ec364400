// Package logging provides leveled logging on top of the standard log package.
//
// The terminal belongs to the UI, so output is normally sent to a rotated log
// file configured with Setup.
package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	levelOnce    sync.Once
)

// Options configures the log output
type Options struct {
	File       string // empty keeps the current output
	Level      string // overrides LOG_LEVEL/DEBUG when set
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				setLevel(LevelDebug)
				return
			}
		}
		setLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
	})
}

func setLevel(l LogLevel) {
	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

// ParseLevel converts a level name to a LogLevel, defaulting to info
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Setup points the standard logger at a rotated file and applies the level.
// It returns the writer so callers can close it on shutdown.
func Setup(opts Options) io.WriteCloser {
	initLevel()
	if opts.Level != "" {
		setLevel(ParseLevel(opts.Level))
	}
	if opts.File == "" {
		return nil
	}

	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    orDefault(opts.MaxSizeMB, 16),
		MaxBackups: orDefault(opts.MaxBackups, 3),
		MaxAge:     orDefault(opts.MaxAgeDays, 14),
	}
	log.SetOutput(w)
	return w
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// SetLevel changes the level at runtime
func SetLevel(l LogLevel) {
	initLevel()
	setLevel(l)
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}
