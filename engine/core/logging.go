package core

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

// LogLevel mirrors the verbosity levels exposed in the configuration file.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func getLogger() *logger {
	if singleton == nil {
		once.Do(
			func() {
				l := log.NewWithOptions(os.Stderr, log.Options{
					ReportCaller:    true,
					ReportTimestamp: true,
					TimeFormat:      time.RFC3339,
					Prefix:          "Engine 🏎️ ",
					CallerOffset:    1,
				})
				l.SetLevel(log.DebugLevel)
				singleton = &logger{l}
			})
	}
	return singleton
}

// ParseLogLevel validates a level name coming from config or flags.
func ParseLogLevel(s string) (LogLevel, error) {
	lvl := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, err := log.ParseLevel(string(lvl)); err != nil {
		return "", fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// SetLogLevel changes the verbosity of the engine logger.
func SetLogLevel(level LogLevel) error {
	l, err := log.ParseLevel(string(level))
	if err != nil {
		return err
	}
	getLogger().SetLevel(l)
	return nil
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
