package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.cwlogd.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cwlogd")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// DBPath returns the app-owned cwlogd.db path.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "cwlogd.db")
}

// LockPath returns the lock file path.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, "LOCK")
}

// LogDir returns the log directory.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// LogPath returns the daemon log file path.
func LogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), "cwlogd.log")
}

// EnsureDir creates the data directory tree with proper permissions.
func EnsureDir(dataDir string) error {
	dirs := []string{
		dataDir,
		LogDir(dataDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
