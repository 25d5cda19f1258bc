// Package artifactstore keeps artifact content as content-addressed blobs.
// Keys have the form "sha256:<hex>", so storing the same content twice is a
// no-op.
package artifactstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/config"
)

const hashPrefix = "sha256:"

var (
	// ErrNotFound is returned by Get for unknown keys.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidKey is returned for keys that are not sha256 content hashes.
	ErrInvalidKey = errors.New("invalid blob key")
)

// Store is a content-addressed blob store.
type Store interface {
	// Put stores data and returns its key.
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg. fs backs the "fs" backend.
func New(ctx context.Context, cfg config.ArtifactsConfig, fs afero.Fs) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFSStore(fs, cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}

// Key returns the key data is stored under.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// parseKey returns the hex digest of key.
func parseKey(key string) (string, error) {
	digest, ok := strings.CutPrefix(key, hashPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return digest, nil
}

// Encode returns the blob for an artifact's content and its MIME type. JSON
// documents are re-encoded; text content is stored as is.
func Encode(a *artifacts.Artifact) ([]byte, string, error) {
	if s, ok := a.Content.(string); ok {
		return []byte(s), mimeType(a.ContentType), nil
	}
	data, err := json.Marshal(a.Content)
	if err != nil {
		return nil, "", fmt.Errorf("encoding %s content: %w", a.Type, err)
	}
	return data, "application/json", nil
}

// Save stores a's content in s and returns the key.
func Save(ctx context.Context, s Store, a *artifacts.Artifact) (string, error) {
	data, contentType, err := Encode(a)
	if err != nil {
		return "", err
	}
	return s.Put(ctx, data, contentType)
}

func mimeType(contentType string) string {
	switch contentType {
	case artifacts.ContentJSON:
		return "application/json"
	case artifacts.ContentMarkdown:
		return "text/markdown; charset=utf-8"
	case artifacts.ContentTypeScript:
		return "text/typescript; charset=utf-8"
	case artifacts.ContentJavaScript:
		return "text/javascript; charset=utf-8"
	case artifacts.ContentJava:
		return "text/x-java; charset=utf-8"
	case artifacts.ContentPython:
		return "text/x-python; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
