package detour

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

var defaultLogger atomic.Pointer[log.Logger]

func init() {
	cfg := DefaultConfig()
	defaultLogger.Store(NewLogger(os.Stderr, cfg))
}

// NewLogger returns a logger writing to w with the level and prefix from
// cfg. An unknown level falls back to warn.
func NewLogger(w io.Writer, cfg Config) *log.Logger {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          cfg.LogPrefix,
	})

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	lg.SetLevel(level)

	return lg
}

// SetLogger replaces the logger used by handles created without WithLogger.
// A nil logger discards everything.
func SetLogger(lg *log.Logger) {
	if lg == nil {
		lg = log.New(io.Discard)
	}
	defaultLogger.Store(lg)
}

// Logger returns the package logger.
func Logger() *log.Logger {
	return defaultLogger.Load()
}
