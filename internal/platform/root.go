package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigFileName is the project configuration file looked up by FindConfig.
const ConfigFileName = ".notesync.yaml"

// ErrConfigNotFound is returned by FindConfig when no configuration file exists
// between the start directory and the filesystem root.
var ErrConfigNotFound = errors.New("config file not found")

// FindConfig walks upwards from startDir and returns the absolute path of the
// first ConfigFileName it meets.
func FindConfig(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		path := filepath.Join(dir, ConfigFileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrConfigNotFound
		}
		dir = parent
	}
}
