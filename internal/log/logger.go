// SPDX-License-Identifier: MIT

// Package log is the application-wide leveled logger. It keeps a small
// printf-style surface (Debugf, Infof, ...) for call sites that only need a
// message, and hands out component loggers for structured fields.
package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

var (
	currentLevel atomic.Uint32
	base         atomic.Pointer[zerolog.Logger]
)

func init() {
	UseConsole()
	SetLevel(LevelInfo)
}

// UseConsole routes logs to a human-readable writer on stderr.
func UseConsole() {
	SetOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMicro})
}

// SetOutput replaces the destination of every logger handed out after the
// call. Component loggers obtained earlier keep their old writer.
func SetOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	base.Store(&l)
}

// SetLevel sets the global logging level.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	zerolog.SetGlobalLevel(level.zerolog())
}

// GetLevel returns the global logging level.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// For returns a logger tagged with the given component name.
func For(component string) zerolog.Logger {
	return base.Load().With().Str("component", component).Logger()
}

func logger() *zerolog.Logger {
	return base.Load()
}

func Debugf(format string, v ...any) {
	logger().Debug().Msgf(format, v...)
}

func Infof(format string, v ...any) {
	logger().Info().Msgf(format, v...)
}

func Warnf(format string, v ...any) {
	logger().Warn().Msgf(format, v...)
}

func Errorf(format string, v ...any) {
	logger().Error().Msgf(format, v...)
}

// Fatalf logs at fatal level and exits the process with status 1.
func Fatalf(format string, v ...any) {
	logger().Fatal().Msgf(format, v...)
}
