package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestrator"
	"github.com/tejas96/sdlc-agents-sub000/internal/workflow"
)

// Summary is a session row without its messages.
type Summary struct {
	ID           string    `json:"id"`
	Workflow     string    `json:"workflow"`
	LLMSessionID string    `json:"llm_session_id,omitempty"`
	Messages     int       `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateSession inserts sess together with its messages.
func (s *Store) CreateSession(ctx context.Context, sess workflow.Session) error {
	mcp, err := encodeJSON(sess.MCPConfigs, "{}")
	if err != nil {
		return err
	}
	repos, err := encodeJSON(sess.Repositories, "[]")
	if err != nil {
		return err
	}
	inputs, err := encodeJSON(sess.Inputs, "{}")
	if err != nil {
		return err
	}

	now := s.stamp()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, workflow, workspace_dir, system_prompt, llm_session_id,
			mcp_configs, repositories, inputs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Workflow, sess.WorkspaceDir, sess.SystemPrompt, nullString(sess.LLMSessionID),
		mcp, repos, inputs, now, now)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sess.ID, err)
	}
	for _, m := range sess.Messages {
		if err := insertMessage(ctx, tx, sess.ID, m, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Debug(log.CatStore, "session created", "session", sess.ID, "workflow", sess.Workflow)
	return nil
}

// GetSession returns a copy of the session. Reads are cached until the
// session next changes.
func (s *Store) GetSession(ctx context.Context, id string) (workflow.Session, error) {
	sess, err := s.sessions.GetWithRefresh(ctx, id, id, sessionTTL)
	if err != nil {
		return workflow.Session{}, err
	}
	return cloneSession(sess), nil
}

func (s *Store) loadSession(ctx context.Context, id string) (workflow.Session, error) {
	var (
		sess               workflow.Session
		llm                sql.NullString
		mcp, repos, inputs string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, workspace_dir, system_prompt, llm_session_id, mcp_configs, repositories, inputs
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Workflow, &sess.WorkspaceDir, &sess.SystemPrompt, &llm, &mcp, &repos, &inputs)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return workflow.Session{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	sess.LLMSessionID = llm.String

	if err := decodeJSON(mcp, &sess.MCPConfigs); err != nil {
		return workflow.Session{}, err
	}
	if err := decodeJSON(repos, &sess.Repositories); err != nil {
		return workflow.Session{}, err
	}
	if err := decodeJSON(inputs, &sess.Inputs); err != nil {
		return workflow.Session{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return workflow.Session{}, fmt.Errorf("loading messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var m orchestrator.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return workflow.Session{}, err
		}
		sess.Messages = append(sess.Messages, m)
	}
	return sess, rows.Err()
}

// AppendMessage adds a message to the end of the session's conversation.
func (s *Store) AppendMessage(ctx context.Context, id string, m orchestrator.Message) error {
	defer s.sessions.Invalidate(ctx, id)

	now := s.stamp()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := touch(ctx, tx, id, now); err != nil {
		return err
	}
	if err := insertMessage(ctx, tx, id, m, now); err != nil {
		return err
	}
	return tx.Commit()
}

// SetLLMSessionID records the upstream session id. It only takes effect while
// the session has none and reports whether it did.
func (s *Store) SetLLMSessionID(ctx context.Context, id, llmSessionID string) (bool, error) {
	defer s.sessions.Invalidate(ctx, id)

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET llm_session_id = ?, updated_at = ?
		WHERE id = ? AND llm_session_id IS NULL`,
		llmSessionID, s.stamp(), id)
	if err != nil {
		return false, fmt.Errorf("setting llm session id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.loadSession(ctx, id); err != nil {
			return false, err
		}
		log.Debug(log.CatStore, "llm session id already set", "session", id)
		return false, nil
	}
	log.Info(log.CatStore, "llm session id recorded", "session", id, "llmSession", llmSessionID)
	return true, nil
}

// ListSessions returns every session, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.workflow, s.llm_session_id, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var (
			sum              Summary
			llm              sql.NullString
			created, updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.Workflow, &llm, &created, &updated, &sum.Messages); err != nil {
			return nil, err
		}
		sum.LLMSessionID = llm.String
		sum.CreatedAt = time.UnixMilli(created).UTC()
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSession removes the session with its messages and artifacts.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	defer s.sessions.Invalidate(ctx, id)

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func touch(ctx context.Context, tx *sql.Tx, id string, now int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, id string, m orchestrator.Message, now int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		id, string(m.Role), m.Content, now)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func cloneSession(s workflow.Session) workflow.Session {
	s.Messages = slices.Clone(s.Messages)
	s.Repositories = slices.Clone(s.Repositories)
	s.MCPConfigs = maps.Clone(s.MCPConfigs)
	s.Inputs = maps.Clone(s.Inputs)
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeJSON(v any, empty string) (string, error) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 0 {
			return empty, nil
		}
	case []git.Repository:
		if len(x) == 0 {
			return empty, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding session field: %w", err)
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decoding session field: %w", err)
	}
	return nil
}
