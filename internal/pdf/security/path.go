// Package security confines file paths supplied by MCP clients to the
// directory the server was started with.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned for paths that escape the configured directory
var ErrOutsideDirectory = errors.New("path is outside configured directory")

// PathValidator resolves client paths against a configured directory
type PathValidator struct {
	dir string
}

// NewPathValidator creates a validator rooted at dir. The directory need not
// exist yet.
func NewPathValidator(dir string) (*PathValidator, error) {
	if dir == "" {
		return nil, errors.New("configured directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}
	return &PathValidator{dir: filepath.Clean(abs)}, nil
}

// Directory returns the absolute configured directory
func (v *PathValidator) Directory() string {
	return v.dir
}

// Resolve turns path into an absolute path inside the configured directory.
// Relative paths are taken relative to it. The target may not exist yet, as
// for output files; symlinks in its existing ancestors are followed.
func (v *PathValidator) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.dir, path)
	}
	path = filepath.Clean(path)

	if !within(path, v.dir) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDirectory, path)
	}

	realDir := evalExisting(v.dir)
	if !within(evalExisting(path), realDir) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDirectory, path)
	}
	return path, nil
}

// ValidatePath reports whether path resolves inside the configured directory
func (v *PathValidator) ValidatePath(path string) error {
	_, err := v.Resolve(path)
	return err
}

// within reports whether path equals dir or lies below it
func within(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// re-appends the missing tail
func evalExisting(path string) string {
	var tail []string
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			if real, err := filepath.EvalSymlinks(cur); err == nil {
				cur = real
			}
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
	return filepath.Join(append([]string{cur}, tail...)...)
}
