package utils

import (
	"testing"

	chlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_IdempotentAndDefaultLevel(t *testing.T) {
	t.Setenv(LogLevelEnv, "")
	Logger = nil
	InitLogger()
	first := Logger
	require.NotNil(t, first)
	require.Equal(t, chlog.InfoLevel, first.GetLevel())

	InitLogger()
	require.Equal(t, first, Logger)
}

func TestInitLogger_ReadsEnv(t *testing.T) {
	t.Setenv(LogLevelEnv, "DEBUG")
	Logger = nil
	InitLogger()
	require.Equal(t, chlog.DebugLevel, Logger.GetLevel())
}

func TestSetLogLevel(t *testing.T) {
	Logger = nil
	InitLogger()

	SetLogLevel("warn")
	require.Equal(t, chlog.WarnLevel, Logger.GetLevel())
	SetLogLevel("error")
	require.Equal(t, chlog.ErrorLevel, Logger.GetLevel())
	SetLogLevel("bogus")
	require.Equal(t, chlog.ErrorLevel, Logger.GetLevel())
	SetLogLevel("debug")
	require.Equal(t, chlog.DebugLevel, Logger.GetLevel())
}
