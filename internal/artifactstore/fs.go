package artifactstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/tejas96/sdlc-agents-sub000/internal/log"
)

// FSStore keeps blobs as <dir>/<hex>.blob.
type FSStore struct {
	fs  afero.Fs
	dir string
	mu  sync.RWMutex
}

// NewFSStore creates the store, making dir if needed.
func NewFSStore(fs afero.Fs, dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact dir is required")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &FSStore{fs: fs, dir: dir}, nil
}

func (s *FSStore) path(digest string) string {
	return filepath.Join(s.dir, digest+".blob")
}

// Put implements Store. The blob is written to a temp file and renamed.
func (s *FSStore) Put(_ context.Context, data []byte, _ string) (string, error) {
	key := Key(data)
	digest, _ := parseKey(key)
	p := s.path(digest)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fs.Stat(p); err == nil {
		return key, nil
	}
	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("committing blob: %w", err)
	}
	log.Debug(log.CatArtifact, "stored blob", "key", key, "bytes", len(data))
	return key, nil
}

// Get implements Store.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	digest, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := afero.ReadFile(s.fs, s.path(digest))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

// Exists implements Store.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	digest, err := parseKey(key)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return afero.Exists(s.fs, s.path(digest))
}

// Delete implements Store. Deleting a missing blob is not an error.
func (s *FSStore) Delete(_ context.Context, key string) error {
	digest, err := parseKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.Remove(s.path(digest)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob: %w", err)
	}
	return nil
}
