package logging

import (
	"log"
	"strings"
)

// Logger is injected into the simulation packages. Warnings are used for
// recoverable per-particle events, errors for conditions that end a run.
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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

// ParseLevel is case-insensitive and falls back to info.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type StdLogger struct {
	level  Level
	prefix string
}

func NewLogger(level string) *StdLogger {
	return &StdLogger{level: ParseLevel(level)}
}

// WithPrefix returns a logger writing "[prefix] " before every message, used
// to tell ranks apart.
func (l *StdLogger) WithPrefix(prefix string) *StdLogger {
	return &StdLogger{level: l.level, prefix: "[" + prefix + "] "}
}

func (l *StdLogger) Level() Level {
	return l.level
}

func (l *StdLogger) logf(level Level, tag, format string, v ...any) {
	if level >= l.level {
		log.Printf(tag+l.prefix+format, v...)
	}
}

func (l *StdLogger) Debugf(format string, v ...any) { l.logf(LevelDebug, "[DEBUG] ", format, v...) }
func (l *StdLogger) Infof(format string, v ...any)  { l.logf(LevelInfo, "[INFO] ", format, v...) }
func (l *StdLogger) Warnf(format string, v ...any)  { l.logf(LevelWarn, "[WARN] ", format, v...) }
func (l *StdLogger) Errorf(format string, v ...any) { l.logf(LevelError, "[ERROR] ", format, v...) }

type NoOpLogger struct{}

func (n *NoOpLogger) Debugf(format string, v ...any) {}
func (n *NoOpLogger) Infof(format string, v ...any)  {}
func (n *NoOpLogger) Warnf(format string, v ...any)  {}
func (n *NoOpLogger) Errorf(format string, v ...any) {}

func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}
