package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/errors"
)

// GlobalConfigDir returns the path to the global Fabrica configuration
// directory, typically ~/.fabrica on Unix systems.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.FabricaHome), nil
}

// ProjectConfigDir returns the relative path to the project configuration
// directory, always .fabrica relative to the project root.
func ProjectConfigDir() string {
	return constants.FabricaHome
}

// GlobalConfigPath returns the full path to the global configuration file,
// typically ~/.fabrica/config.yaml.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", fmt.Errorf("get global config path: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ProjectConfigPath returns the relative path to the project configuration
// file, always .fabrica/config.yaml relative to the project root.
func ProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), "config.yaml")
}

// CheckpointsDir returns the project-relative directory holding per-package
// build checkpoints.
func CheckpointsDir() string {
	return filepath.Join(ProjectConfigDir(), constants.CheckpointsDir)
}

// LogsDir returns the project-relative directory holding CLI log files.
func LogsDir() string {
	return filepath.Join(ProjectConfigDir(), constants.LogsDir)
}
