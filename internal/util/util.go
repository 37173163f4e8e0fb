package util

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

var logger = newLogger()

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if os.Getenv("ENV") != "production" && os.Getenv("GIN_MODE") != "release" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return l.Sugar()
}

// ReplaceLogger swaps the process logger, returning a restore func. Used by tests.
func ReplaceLogger(l *zap.SugaredLogger) func() {
	old := logger
	logger = l
	return func() { logger = old }
}

func LogInfo(format string, v ...any) {
	logger.Infof(format, v...)
}

func LogWarn(format string, v ...any) {
	logger.Warnf(format, v...)
}

func LogError(format string, v ...any) {
	logger.Errorf(format, v...)
}

func LogFatal(format string, v ...any) {
	logger.Fatalf(format, v...)
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	_ = logger.Sync()
}

func GetEnvStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func GetEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		LogWarn("Invalid int for %s: %v, using default %d", key, err, fallback)
		return fallback
	}
	return i
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		LogWarn("Invalid duration for %s: %v, using default %v", key, err, fallback)
		return fallback
	}
	return d
}

func FormatUptime(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())
	switch {
	case hours > 0:
		return fmt.Sprintf("%d hour%s, %d minute%s, %d second%s",
			hours, plural(hours),
			minutes, plural(minutes),
			seconds, plural(seconds))
	case minutes > 0:
		return fmt.Sprintf("%d minute%s, %d second%s",
			minutes, plural(minutes),
			seconds, plural(seconds))
	default:
		return fmt.Sprintf("%d second%s", seconds, plural(seconds))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
