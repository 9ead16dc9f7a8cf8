// Package xdg resolves XDG Base Directory paths for fhirq.
// Each directory falls back to the conventional location under the home
// directory when its XDG variable is unset, and is created private (0700).
package xdg

import (
	"os"
	"path/filepath"
)

const app = "fhirq"

func resolve(env string, fallback ...string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(append([]string{home}, fallback...)...)
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}

// ConfigDir returns $XDG_CONFIG_HOME/fhirq, falling back to ~/.config/fhirq.
func ConfigDir() (string, error) { return resolve("XDG_CONFIG_HOME", ".config") }

// StateDir returns $XDG_STATE_HOME/fhirq, falling back to ~/.local/state/fhirq.
func StateDir() (string, error) { return resolve("XDG_STATE_HOME", ".local", "state") }

// CacheDir returns $XDG_CACHE_HOME/fhirq, falling back to ~/.cache/fhirq.
// Query results are cached below it.
func CacheDir() (string, error) { return resolve("XDG_CACHE_HOME", ".cache") }
