package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrFileNotAllowed is returned when a SQLite or DuckDB path is refused
var ErrFileNotAllowed = errors.New("database file not allowed")

// ConnectPolicy holds the server side limits applied to connect form values.
type ConnectPolicy struct {
	// FileDir is the only directory SQLite and DuckDB files are opened from.
	// File databases are refused while it is empty.
	FileDir string
	// SSLMode is passed to PostgreSQL connections. Empty means prefer.
	SSLMode string
}

// FileDatabases reports whether SQLite and DuckDB can be selected
func (p ConnectPolicy) FileDatabases() bool {
	return strings.TrimSpace(p.FileDir) != ""
}

// AllowedTypes lists the vendors the connect form offers under this policy
func (p ConnectPolicy) AllowedTypes() []DatabaseType {
	types := make([]DatabaseType, 0, len(SupportedTypes))
	for _, t := range SupportedTypes {
		if t.IsFile() && !p.FileDatabases() {
			continue
		}
		types = append(types, t)
	}
	return types
}

// ResolveFile maps a form value onto an existing regular file below FileDir.
// Relative names are taken relative to FileDir; symlinks are followed before
// the containment check.
func (p ConnectPolicy) ResolveFile(name string) (string, error) {
	if !p.FileDatabases() {
		return "", fmt.Errorf("%w: file databases are disabled", ErrFileNotAllowed)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: file name is required", ErrFileNotAllowed)
	}
	// Both drivers read options after '?'.
	if strings.ContainsAny(name, "?#\x00") {
		return "", fmt.Errorf("%w: invalid file name %q", ErrFileNotAllowed, name)
	}

	root, err := filepath.Abs(p.FileDir)
	if err != nil {
		return "", fmt.Errorf("resolve database directory: %w", err)
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve database directory: %w", err)
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if !within(root, path) {
		return "", fmt.Errorf("%w: %q is outside the database directory", ErrFileNotAllowed, name)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: %q does not exist", ErrFileNotAllowed, name)
	}
	if !within(root, resolved) {
		return "", fmt.Errorf("%w: %q is outside the database directory", ErrFileNotAllowed, name)
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %q is not a regular file", ErrFileNotAllowed, name)
	}
	return resolved, nil
}

// within reports whether path lies strictly below root
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
