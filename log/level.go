package log

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level is the logger's minimum severity. It mirrors zapcore.Level so that
// Logger can hand it straight to zap's AtomicLevel without a conversion
// table at every call site.
type Level int8

// Levels, ordered least to most severe.
const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	WarnLevel  = Level(zapcore.WarnLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
	FatalLevel = Level(zapcore.FatalLevel)
)

// parse converts a level name (case-insensitive) to a Level, defaulting to
// InfoLevel for anything it doesn't recognize.
func parse(name string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DebugLevel, nil
	case "INFO", "":
		return InfoLevel, nil
	case "WARN", "WARNING":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	case "FATAL":
		return FatalLevel, nil
	default:
		return InfoLevel, nil
	}
}
