// Package paths centralizes the file names of the player's data directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "cadence.pid"
	ConfigFile = "config.toml"
	LogFile    = "cadence.log"
)

const (
	BinaryName = "cadence"
	DataDirRel = ".cadence" // relative to $HOME
	// EnvDataDir overrides the default data directory location.
	EnvDataDir = "CADENCE_HOME"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Default returns the data directory named by $CADENCE_HOME, or
// $HOME/.cadence when that is unset.
func Default() (DataDir, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return DataDir{Root: dir}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{}, fmt.Errorf("locate home directory: %w", err)
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}, nil
}

// Ensure creates the data directory if it does not exist.
func (d DataDir) Ensure() error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }
