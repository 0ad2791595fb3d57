package log

import (
	"log/slog"
	"strings"
)

// Level is a log severity. Its values are slog's, so it converts freely.
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// String returns the slog name of the level ("DEBUG", "WARN+2", ...).
func (l Level) String() string {
	return slog.Level(l).String()
}

// ToSlogLevel converts l for slog handlers.
func (l Level) ToSlogLevel() slog.Level {
	return slog.Level(l)
}

// ParseLevel accepts the slog level names in any case, plus "warning".
// Anything else is LevelInfo.
func ParseLevel(s string) Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo
	}
	return Level(lvl)
}
