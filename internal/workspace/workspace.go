// Package workspace gives sessions a rooted view of the filesystem the agent
// works in. All access goes through afero so tests run against MemMapFs.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Workspace is one session's working directory.
type Workspace struct {
	dir string
	fs  afero.Fs
}

// New returns a workspace rooted at dir on fs. dir should be absolute.
func New(fs afero.Fs, dir string) *Workspace {
	return &Workspace{dir: filepath.Clean(dir), fs: fs}
}

// OS returns a workspace on the host filesystem.
func OS(dir string) *Workspace {
	return New(afero.NewOsFs(), dir)
}

// Provision creates root/<sessionID> and returns it as a workspace.
func Provision(fs afero.Fs, root, sessionID string) (*Workspace, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return nil, fmt.Errorf("workspace: invalid session id %q", sessionID)
	}
	dir := filepath.Join(root, sessionID)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: creating %s: %w", dir, err)
	}
	return New(fs, dir), nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Fs returns the underlying filesystem.
func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

// Abs resolves path against the workspace root. Absolute paths are returned
// cleaned and unchanged.
func (w *Workspace) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(w.dir, path)
}

// Rel returns path relative to the root, in slash form, and whether path lies
// inside the workspace.
func (w *Workspace) Rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.dir, w.Abs(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ReadFile reads a file by absolute or workspace-relative path.
func (w *Workspace) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(w.fs, w.Abs(path))
}

// WriteFile writes data, creating parent directories.
func (w *Workspace) WriteFile(path string, data []byte) error {
	abs := w.Abs(path)
	if err := w.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(w.fs, abs, data, 0o644)
}

// WriteJSON writes v as indented JSON.
func (w *Workspace) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return w.WriteFile(path, data)
}

// MkdirAll creates each directory below the root.
func (w *Workspace) MkdirAll(dirs ...string) error {
	for _, d := range dirs {
		if err := w.fs.MkdirAll(w.Abs(d), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}

// Exists reports whether path exists.
func (w *Workspace) Exists(path string) bool {
	_, err := w.fs.Stat(w.Abs(path))
	return err == nil
}

// IsNotExist reports whether err means the file is missing.
func IsNotExist(err error) bool {
	return os.IsNotExist(err)
}
