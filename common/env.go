// Package common holds the environment knobs shared by the warpfetch
// command line front-end.
package common

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Environment variable names for configuration.
const (
	// MaxConcurrentEnv overrides the parallelism of batch sessions.
	MaxConcurrentEnv = "WARPFETCH_MAX_CONCURRENT"

	// CookieDirEnv overrides the directory of session cookie stores.
	CookieDirEnv = "WARPFETCH_COOKIE_DIR"

	// DebugEnv is the environment variable to enable debug logging.
	DebugEnv = "WARPFETCH_DEBUG"

	// ConfigDirEnv overrides the directory of the credential vault.
	ConfigDirEnv = "WARPFETCH_CONFIG_DIR"
)

var lookupEnv = os.LookupEnv

// DebugEnabled reports whether DebugEnv is set to a true value.
func DebugEnabled() bool {
	v, ok := lookupEnv(DebugEnv)
	if !ok {
		return false
	}
	on, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && on
}

// MaxConcurrent returns the positive value of MaxConcurrentEnv. The second
// result is false when the variable is unset or not a positive integer.
func MaxConcurrent() (int, bool) {
	v, ok := lookupEnv(MaxConcurrentEnv)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// CookieDir returns the value of CookieDirEnv, or "" when unset.
func CookieDir() string {
	v, _ := lookupEnv(CookieDirEnv)
	return strings.TrimSpace(v)
}

// ConfigDir returns the warpfetch configuration directory.
func ConfigDir() (string, error) {
	if v, ok := lookupEnv(ConfigDirEnv); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "warpfetch"), nil
}
