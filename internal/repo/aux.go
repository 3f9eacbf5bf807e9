package repo

import (
	"context"
	"encoding/json"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/pkg/types"
)

// SetTodos replaces a session's todo list wholesale and publishes
// todo.updated.
func (r *Repository) SetTodos(ctx context.Context, sessionID string, todos []types.Todo) error {
	data, err := json.Marshal(todos)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO todo (session_id, data_json) VALUES (?, ?)
		ON CONFLICT (session_id) DO UPDATE SET data_json = excluded.data_json`,
		sessionID, string(data))
	if err != nil {
		return err
	}

	r.bus.Publish(event.TodoUpdated, event.TodoUpdatedData{SessionID: sessionID, Todos: todos})
	return nil
}

// GetTodos returns a session's todo list, empty when unset.
func (r *Repository) GetTodos(ctx context.Context, sessionID string) ([]types.Todo, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data_json FROM todo WHERE session_id = ?`, sessionID).Scan(&data)
	if err != nil {
		return []types.Todo{}, nil
	}

	var todos []types.Todo
	if err := json.Unmarshal([]byte(data), &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

// SetDiffs replaces a session's accumulated file diffs.
func (r *Repository) SetDiffs(ctx context.Context, sessionID string, diffs []types.FileDiff) error {
	data, err := json.Marshal(diffs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO session_diff (session_id, data_json) VALUES (?, ?)
		ON CONFLICT (session_id) DO UPDATE SET data_json = excluded.data_json`,
		sessionID, string(data))
	return err
}

// GetDiffs returns a session's accumulated file diffs.
func (r *Repository) GetDiffs(ctx context.Context, sessionID string) ([]types.FileDiff, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data_json FROM session_diff WHERE session_id = ?`, sessionID).Scan(&data)
	if err != nil {
		return []types.FileDiff{}, nil
	}

	var diffs []types.FileDiff
	if err := json.Unmarshal([]byte(data), &diffs); err != nil {
		return nil, err
	}
	return diffs, nil
}

// SetProjectPermissions stores a project's permission ruleset.
func (r *Repository) SetProjectPermissions(ctx context.Context, projectID string, rules []types.PermissionRule) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO permission (project_id, data_json) VALUES (?, ?)
		ON CONFLICT (project_id) DO UPDATE SET data_json = excluded.data_json`,
		projectID, string(data))
	return err
}

// GetProjectPermissions returns a project's ruleset, empty when unset.
func (r *Repository) GetProjectPermissions(ctx context.Context, projectID string) ([]types.PermissionRule, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data_json FROM permission WHERE project_id = ?`, projectID).Scan(&data)
	if err != nil {
		return nil, nil
	}

	var rules []types.PermissionRule
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// SetShare stores a session's share handle.
func (r *Repository) SetShare(ctx context.Context, sessionID string, share *types.ShareInfo) error {
	data, err := json.Marshal(share)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO session_share (session_id, data_json) VALUES (?, ?)
		ON CONFLICT (session_id) DO UPDATE SET data_json = excluded.data_json`,
		sessionID, string(data))
	return err
}

// GetShare returns a session's share handle or nil.
func (r *Repository) GetShare(ctx context.Context, sessionID string) (*types.ShareInfo, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data_json FROM session_share WHERE session_id = ?`, sessionID).Scan(&data)
	if err != nil {
		return nil, nil
	}

	var share types.ShareInfo
	if err := json.Unmarshal([]byte(data), &share); err != nil {
		return nil, err
	}
	return &share, nil
}

// DeleteShare drops a session's share handle.
func (r *Repository) DeleteShare(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_share WHERE session_id = ?`, sessionID)
	return err
}
