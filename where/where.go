// Package where implements a cross-platform resolver for application-specific filesystem paths.
package where

import (
	"os"
	"path/filepath"

	"github.com/massdroid-cli/massd/constant"
	"github.com/massdroid-cli/massd/filesystem"
	"github.com/samber/lo"
)

// EnvConfigPath is the environment variable identifier used to override the default configuration directory.
const EnvConfigPath = "MASSD_CONFIG_PATH"

// EnvRuntimePath overrides the directory holding the control socket.
const EnvRuntimePath = "MASSD_RUNTIME_PATH"

func ensureDir(path string) string {
	lo.Must0(filesystem.API().MkdirAll(path, os.ModePerm))
	return path
}

// Config resolves the primary application configuration directory.
// The path can be overridden via MASSD_CONFIG_PATH.
func Config() string {
	if custom, ok := os.LookupEnv(EnvConfigPath); ok {
		return ensureDir(custom)
	}

	base := lo.Must(os.UserConfigDir())
	return ensureDir(filepath.Join(base, constant.App))
}

// State resolves the directory for data the daemon writes at runtime.
func State() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = filepath.Join(".", "cache")
	}
	return ensureDir(filepath.Join(base, constant.App))
}

// Logs resolves the directory used for diagnostic logs.
func Logs() string {
	return ensureDir(filepath.Join(Config(), "logs"))
}

// Journal resolves the file recording past resume attempts.
func Journal() string {
	return filepath.Join(State(), "journal.json")
}

// Runtime resolves the directory for the control socket. XDG_RUNTIME_DIR is
// preferred, falling back to the system temp directory.
func Runtime() string {
	if custom, ok := os.LookupEnv(EnvRuntimePath); ok {
		return ensureDir(custom)
	}
	if xdg, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && xdg != "" {
		return ensureDir(filepath.Join(xdg, constant.App))
	}
	return ensureDir(filepath.Join(os.TempDir(), constant.App))
}

// ControlSocket resolves the unix socket the daemon listens on for local commands.
func ControlSocket() string {
	return filepath.Join(Runtime(), "control.sock")
}
