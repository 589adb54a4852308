// Package logging owns the process-wide hclog logger.
//
// Init is called once during startup; afterwards the logger is shared read-only
// state and L may be called from any goroutine.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Numeric log levels accepted from configuration (LOG_LEVEL).
const (
	LevelError = 0
	LevelWarn  = 1
	LevelLog   = 2
	LevelInfo  = 3
	LevelDebug = 4
	LevelTrace = 5
)

var (
	initOnce sync.Once
	root     hclog.Logger = hclog.NewNullLogger()
)

// Init builds the root logger at the given numeric level and installs it as the hclog
// default. Only the first call has any effect.
func Init(level int) hclog.Logger {
	initOnce.Do(func() {
		root = New(level, os.Stderr)
		hclog.SetDefault(root)
	})
	return root
}

// L returns the process-wide logger. Before Init it discards everything.
func L() hclog.Logger {
	return root
}

// New creates a standalone logger writing to w. Tests use it to capture output.
func New(level int, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "lip-index",
		Level:  ToHCLogLevel(level),
		Output: w,
	})
}

// ToHCLogLevel maps the numeric configuration level to an hclog level.
func ToHCLogLevel(level int) hclog.Level {
	switch {
	case level <= LevelError:
		return hclog.Error
	case level == LevelWarn:
		return hclog.Warn
	case level <= LevelInfo:
		return hclog.Info
	case level == LevelDebug:
		return hclog.Debug
	default:
		return hclog.Trace
	}
}
