package validation

import (
	"fmt"
	"os"
	"path/filepath"
)

// PathHandler resolves the on-disk locations bazaar writes to.
type PathHandler struct {
	validator *FilePathValidator
	home      string
}

func NewPathHandler() *PathHandler {
	home, _ := os.UserHomeDir()
	return &PathHandler{validator: NewFilePathValidator(), home: home}
}

// Expand expands a leading ~ and returns an absolute, cleaned path.
func (ph *PathHandler) Expand(path string) (string, error) {
	return ph.validator.ValidateAndSanitize(path)
}

// EnsureDir creates the parent directory of path.
func (ph *PathHandler) EnsureDir(path string) (string, error) {
	resolved, err := ph.Expand(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", resolved, err)
	}
	return resolved, nil
}

// DBPath returns the database file, falling back to ~/.bazaar.db.
func (ph *PathHandler) DBPath(userPath string) (string, error) {
	if userPath == "" {
		userPath = filepath.Join(ph.home, ".bazaar.db")
	}
	resolved, err := ph.EnsureDir(userPath)
	if err != nil {
		return "", err
	}
	if info, statErr := os.Stat(resolved); statErr == nil && info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", resolved)
	}
	return resolved, nil
}

// IndexPath returns the bleve index directory. An empty path means no index.
func (ph *PathHandler) IndexPath(userPath string) (string, error) {
	if userPath == "" {
		return "", nil
	}
	return ph.EnsureDir(userPath)
}
