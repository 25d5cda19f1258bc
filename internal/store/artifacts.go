package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
)

// ArtifactRecord is the latest version of one artifact file of a session.
type ArtifactRecord struct {
	SessionID string `json:"session_id"`
	artifacts.Artifact
	// BlobKey locates the content in the artifact blob store, if it was saved there.
	BlobKey   string    `json:"blob_key,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveArtifact records a. A later artifact with the same file path replaces
// the earlier one.
func (s *Store) SaveArtifact(ctx context.Context, sessionID string, a *artifacts.Artifact, blobKey string) error {
	content, err := json.Marshal(a.Content)
	if err != nil {
		return fmt.Errorf("encoding artifact %s: %w", a.FilePath, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (session_id, file_path, artifact_type, artifact_id, actual_file_path,
			filename, content_type, content, blob_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, file_path) DO UPDATE SET
			artifact_type = excluded.artifact_type,
			artifact_id = excluded.artifact_id,
			actual_file_path = excluded.actual_file_path,
			filename = excluded.filename,
			content_type = excluded.content_type,
			content = excluded.content,
			blob_key = excluded.blob_key,
			updated_at = excluded.updated_at`,
		sessionID, a.FilePath, a.Type, a.ID, a.ActualFilePath,
		a.Filename, a.ContentType, string(content), blobKey, s.stamp())
	if err != nil {
		return fmt.Errorf("saving artifact %s: %w", a.FilePath, err)
	}
	log.Debug(log.CatStore, "artifact saved", "session", sessionID, "type", a.Type, "id", a.ID)
	return nil
}

// ListArtifacts returns the session's artifacts ordered by file path. An
// empty artifactType lists every type.
func (s *Store) ListArtifacts(ctx context.Context, sessionID, artifactType string) ([]ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, artifact_type, artifact_id, actual_file_path, filename,
			content_type, content, blob_key, updated_at
		FROM artifacts
		WHERE session_id = ? AND (? = '' OR artifact_type = ?)
		ORDER BY file_path`, sessionID, artifactType, artifactType)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ArtifactRecord
	for rows.Next() {
		var (
			r       = ArtifactRecord{SessionID: sessionID}
			content string
			updated int64
		)
		if err := rows.Scan(&r.FilePath, &r.Type, &r.ID, &r.ActualFilePath, &r.Filename,
			&r.ContentType, &content, &r.BlobKey, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &r.Content); err != nil {
			return nil, fmt.Errorf("decoding artifact %s: %w", r.FilePath, err)
		}
		r.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
