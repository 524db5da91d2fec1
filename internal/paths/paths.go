// Package paths resolves the per-user state directory and the files kept under it.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// HomeEnvVar overrides the state directory location.
	HomeEnvVar = "GETUDID_HOME"
	// DefaultHome is the state directory name under the user's home directory.
	DefaultHome = ".getudid"

	// LogsSubdir holds operator log files.
	LogsSubdir = "logs"
	// LogFile is the operator log file name.
	LogFile = "getudid.log"
	// ConfigSubdir is the per-project configuration directory.
	ConfigSubdir = ".getudid"
	// ConfigFile is the per-project configuration file name.
	ConfigFile = "config.json"
)

// GetHome returns the state directory, honoring GETUDID_HOME.
func GetHome() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home, nil
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user home: %w", err)
	}
	return filepath.Join(userHome, DefaultHome), nil
}

// GetLogsDir returns ~/.getudid/logs
func GetLogsDir() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, LogsSubdir), nil
}

// EnsureLogsDir creates the logs directory if needed and returns it.
func EnsureLogsDir() (string, error) {
	dir, err := GetLogsDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return dir, nil
}

// GetLogPath returns ~/.getudid/logs/getudid.log
func GetLogPath() (string, error) {
	dir, err := GetLogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LogFile), nil
}

// GetConfigPath returns <dir>/.getudid/config.json
func GetConfigPath(dir string) string {
	return filepath.Join(dir, ConfigSubdir, ConfigFile)
}
