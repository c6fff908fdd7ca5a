package detour

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultScanLimit is how many bytes at the start of a target are decoded
// when its length is not known.
const DefaultScanLimit = 32

// Config holds process-wide settings, usually read from the environment with
// LoadConfig.
type Config struct {
	// Backend names the Provider to use. See Lookup.
	Backend string
	// LogLevel is one of debug, info, warn or error.
	LogLevel string
	// LogPrefix is prepended to every log line.
	LogPrefix string
	// ScanLimit caps how many bytes of a target are decoded.
	ScanLimit int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Backend:   NativeName,
		LogLevel:  "warn",
		LogPrefix: "detour",
		ScanLimit: DefaultScanLimit,
	}
}

// LoadConfig reads the configuration from the environment:
//
//	DETOUR_BACKEND:    native or gohook (default: native)
//	DETOUR_LOG_LEVEL:  debug, info, warn, error (default: warn)
//	DETOUR_LOG_PREFIX: prefix for log messages (default: "detour")
//	DETOUR_SCAN_LIMIT: bytes to decode at the start of a target (default: 32)
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("DETOUR_BACKEND"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("DETOUR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("DETOUR_LOG_PREFIX"); ok {
		cfg.LogPrefix = v
	}
	if v := os.Getenv("DETOUR_SCAN_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("DETOUR_SCAN_LIMIT: %w", err)
		}
		cfg.ScanLimit = n
	}

	return cfg, cfg.Validate()
}

// Validate checks that every field holds a usable value.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	if c.ScanLimit < minScanLimit {
		return fmt.Errorf("scan limit %d is below the minimum of %d", c.ScanLimit, minScanLimit)
	}
	if _, err := Lookup(c.Backend); err != nil {
		return err
	}
	return nil
}

// The largest jump plus one maximum length instruction that may straddle it.
const minScanLimit = 14 + 15
