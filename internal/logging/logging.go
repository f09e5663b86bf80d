// Package logging owns the process-wide hclog root logger. Packages receive
// a named sub-logger so every line carries its origin, e.g. "mediadeck.watcher".
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.RWMutex
	root hclog.Logger = hclog.New(&hclog.LoggerOptions{
		Name:  "mediadeck",
		Level: hclog.Info,
	})
)

// Setup rebuilds the root logger. An empty level falls back to the
// environment (see LevelFromEnv).
func Setup(level string, json bool) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if level == "" || lvl == hclog.NoLevel {
		lvl = LevelFromEnv()
	}

	l := hclog.New(&hclog.LoggerOptions{
		Name:            "mediadeck",
		Level:           lvl,
		JSONFormat:      json,
		IncludeLocation: lvl == hclog.Trace,
		TimeFormat:      "2006-01-02 15:04:05.000",
	})

	mu.Lock()
	root = l
	mu.Unlock()
	return l
}

// LevelFromEnv reads DEBUG and LOG_LEVEL. DEBUG wins when set to a truthy value;
// an unknown or missing LOG_LEVEL means info.
func LevelFromEnv() hclog.Level {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return hclog.Debug
	}

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "trace":
		return hclog.Trace
	case "debug":
		return hclog.Debug
	case "warn", "warning":
		return hclog.Warn
	case "error":
		return hclog.Error
	default:
		return hclog.Info
	}
}

// Root returns the current root logger.
func Root() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a sub-logger of the root.
func Named(name string) hclog.Logger {
	return Root().Named(name)
}

// SetLevel changes the root level at runtime (options file edits).
func SetLevel(level string) {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		return
	}
	Root().SetLevel(lvl)
}

// OrNull returns l, or a discarding logger when l is nil.
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
