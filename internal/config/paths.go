package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Paths holds resolved filesystem locations for the daemon. All relative
// paths are anchored at the executable directory so the stores travel with
// the installed application rather than the working directory.
type Paths struct {
	ExecutableDir string
}

var (
	cachedPaths *Paths
	pathsOnce   sync.Once
	pathsErr    error
)

// GetPaths resolves and caches the executable directory
func GetPaths() (*Paths, error) {
	pathsOnce.Do(func() {
		execPath, err := os.Executable()
		if err != nil {
			pathsErr = fmt.Errorf("failed to locate executable: %w", err)
			return
		}

		// Resolve symlinks so the data directory is stable across launches
		resolved, err := filepath.EvalSymlinks(execPath)
		if err == nil {
			execPath = resolved
		}

		dir := filepath.Dir(execPath)

		// Tests run from the build cache; fall back to the working directory
		if strings.Contains(dir, "go-build") || strings.Contains(dir, os.TempDir()) {
			if wd, err := os.Getwd(); err == nil {
				dir = wd
			}
		}

		cachedPaths = &Paths{ExecutableDir: dir}
	})

	return cachedPaths, pathsErr
}

// Resolve anchors a relative path at the executable directory. Absolute
// paths pass through unchanged.
func (p *Paths) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.ExecutableDir, path)
}

// EnsureDir creates a directory if it does not exist
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// FileExists reports whether a file exists at the given path
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
