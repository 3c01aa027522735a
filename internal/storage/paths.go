// Package storage persists analysis results, transposition table
// snapshots and engine preferences in a BadgerDB database.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName = "chesscore"

	// HomeEnv, when set, replaces the platform data directory. Tests and
	// side-by-side installs point it at a scratch directory.
	HomeEnv = "CHESSCORE_HOME"
)

// Subdirectories of the data directory.
const (
	nnueSubdir = "nnue"
	dbSubdir   = "db"
)

// GetDataDir returns the data directory, creating it if needed:
// $CHESSCORE_HOME when set, otherwise chesscore/ under the platform's
// application data root (~/Library/Application Support on macOS,
// %APPDATA% on Windows, $XDG_DATA_HOME or ~/.local/share elsewhere).
func GetDataDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ensureDir(dir)
	}
	root, err := platformDataRoot(runtime.GOOS)
	if err != nil {
		return "", fmt.Errorf("locate data directory: %w", err)
	}
	return ensureDir(filepath.Join(root, appName))
}

func platformDataRoot(goos string) (string, error) {
	var env string
	var fallback []string
	switch goos {
	case "darwin":
		fallback = []string{"Library", "Application Support"}
	case "windows":
		env, fallback = "APPDATA", []string{"AppData", "Roaming"}
	default:
		env, fallback = "XDG_DATA_HOME", []string{".local", "share"}
	}
	if env != "" {
		if dir := os.Getenv(env); dir != "" {
			return dir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

// GetNNUEDir returns the directory searched for network weight files.
func GetNNUEDir() (string, error) { return subDir(nnueSubdir) }

// GetDatabaseDir returns the directory of the BadgerDB database.
func GetDatabaseDir() (string, error) { return subDir(dbSubdir) }

func subDir(name string) (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(dataDir, name))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}
