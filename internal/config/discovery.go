package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DiscoverConfigFile finds a config file in the standard locations.
// Priority order: $QRUN_CONFIG, ~/.config/qrun/config.yaml, ./qrun.yaml.
// An empty result with a nil error means no file exists; flags alone are
// then enough.
func DiscoverConfigFile() (string, error) {
	if p := os.Getenv("QRUN_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("QRUN_CONFIG points to %q: %w", p, err)
		}
		return p, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "qrun", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat("qrun.yaml"); err == nil {
		return "qrun.yaml", nil
	}
	return "", nil
}
