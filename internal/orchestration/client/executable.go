package client

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ExecutableFinder locates a runtime binary, checking known install
// locations before falling back to PATH.
type ExecutableFinder struct {
	name       string
	knownPaths []string
}

// FinderOption configures an ExecutableFinder.
type FinderOption func(*ExecutableFinder)

// WithKnownPaths sets priority-ordered candidate paths. "~" expands to the
// home directory and "{name}" to the executable name.
func WithKnownPaths(paths ...string) FinderOption {
	return func(f *ExecutableFinder) {
		f.knownPaths = paths
	}
}

// NewExecutableFinder creates a finder for name.
func NewExecutableFinder(name string, opts ...FinderOption) *ExecutableFinder {
	f := &ExecutableFinder{name: name}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find returns the first regular file among the known paths, then PATH.
func (f *ExecutableFinder) Find() (string, error) {
	name := f.name
	if runtime.GOOS == "windows" && !strings.HasSuffix(name, ".exe") {
		name += ".exe"
	}

	home, _ := os.UserHomeDir()
	for _, p := range f.knownPaths {
		candidate := strings.ReplaceAll(p, "{name}", name)
		if strings.HasPrefix(candidate, "~") {
			if home == "" {
				continue
			}
			candidate = filepath.Join(home, strings.TrimPrefix(candidate, "~"))
		}
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		return candidate, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s executable not found: %w", f.name, err)
	}
	return path, nil
}
