// Package utils holds the process-wide structured logger.
package utils

import (
	"os"
	"strings"

	chlog "github.com/charmbracelet/log"
)

// Logger is the application-wide structured logger.
var Logger *chlog.Logger

const (
	debugLevel = "debug"
	infoLevel  = "info"
	warnLevel  = "warn"
	errorLevel = "error"

	// LogLevelEnv selects the initial level.
	LogLevelEnv = "KMT_LOG_LEVEL"
)

// InitLogger initializes the global logger with level from KMT_LOG_LEVEL.
// Valid levels: debug, info, warn, error.
func InitLogger() {
	if Logger != nil {
		return
	}
	l := chlog.New(os.Stderr)
	l.SetTimeFormat("2006-01-02 15:04:05.000")
	l.SetReportTimestamp(true)
	l.SetLevel(parseLevel(os.Getenv(LogLevelEnv), chlog.InfoLevel))
	Logger = l
}

// SetLogLevel allows changing level at runtime. Unknown levels are ignored.
func SetLogLevel(level string) {
	if Logger == nil {
		InitLogger()
	}
	Logger.SetLevel(parseLevel(level, Logger.GetLevel()))
}

func parseLevel(s string, fallback chlog.Level) chlog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case debugLevel:
		return chlog.DebugLevel
	case infoLevel:
		return chlog.InfoLevel
	case warnLevel:
		return chlog.WarnLevel
	case errorLevel:
		return chlog.ErrorLevel
	default:
		return fallback
	}
}
