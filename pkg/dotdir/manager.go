// Package dotdir resolves the .rolodex/ directory that holds config.toml and
// the default local SQLite database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the rolodex directory.
	dirName = ".rolodex"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .rolodex/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.rolodex/ dir
//  3. Home ~/.rolodex/ dir
//  4. If none found, attempt to create ~/.rolodex/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating rolodex directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Resolve returns path unchanged when it is absolute or a special SQLite
// name, and otherwise joins it onto the target directory.
func (m *Manager) Resolve(overrideDir, path string) (string, error) {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path, nil
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, path), nil
}

// localDirExists checks whether a .rolodex/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
