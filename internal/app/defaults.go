package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns the client's default paths, checking environment
// variables first.
// Environment variables:
//   - XSYNC_HOME: base directory for xsync data (default: ~/.xsync)
//   - XSYNC_CONFIG_PATH: config file location (default: $XSYNC_HOME/config.toml)
func GetDefaults() (map[string]string, error) {
	return defaults("XSYNC_HOME", "XSYNC_CONFIG_PATH", ".xsync", "config.toml")
}

// GetServerDefaults is GetDefaults for xsyncd, using XSYNCD_HOME
// (default: ~/.xsyncd) and XSYNCD_CONFIG_PATH (default: $XSYNCD_HOME/xsyncd.toml).
func GetServerDefaults() (map[string]string, error) {
	return defaults("XSYNCD_HOME", "XSYNCD_CONFIG_PATH", ".xsyncd", "xsyncd.toml")
}

func defaults(homeEnv, configEnv, homeName, configName string) (map[string]string, error) {
	baseDir, err := getBaseDir(homeEnv, homeName)
	if err != nil {
		return nil, err
	}
	configPath := os.Getenv(configEnv)
	if configPath == "" {
		configPath = filepath.Join(baseDir, configName)
	}
	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"cache_dir":   filepath.Join(baseDir, "cache"),
	}, nil
}

// getBaseDir returns $env when set, otherwise ~/name.
func getBaseDir(env, name string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, name), nil
}
