package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/id"
	"github.com/opencode-ai/core/pkg/types"
)

// CreateSession persists a new session for a project.
func (r *Repository) CreateSession(ctx context.Context, projectID, directory, title string, parentID *string) (*types.Session, error) {
	if parentID != nil {
		if _, err := r.GetSession(ctx, *parentID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UnixMilli()
	s := &types.Session{
		ID:        id.Ascending(id.Session),
		ProjectID: projectID,
		ParentID:  parentID,
		Title:     title,
		Directory: directory,
		Version:   "1",
		Time:      types.SessionTime{Created: now, Updated: now},
	}

	if err := r.putSession(ctx, r.db, s); err != nil {
		return nil, err
	}
	r.bus.Publish(event.SessionUpdated, event.SessionUpdatedData{Info: s})
	return s, nil
}

// GetSession loads one session.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data_json FROM session WHERE id = ?`, sessionID).Scan(&data)
	if err != nil {
		return nil, notFound("session", sessionID, err)
	}

	var s types.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns a project's sessions in id (creation) order.
func (r *Repository) ListSessions(ctx context.Context, projectID string) ([]*types.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data_json FROM session WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ChildSessions returns the forks/subagents parented on a session.
func (r *Repository) ChildSessions(ctx context.Context, sessionID string) ([]*types.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data_json FROM session WHERE parent_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// UpdateSession applies mutate to the stored session and republishes
// it. The read-modify-write runs inside one transaction.
func (r *Repository) UpdateSession(ctx context.Context, sessionID string, mutate func(*types.Session)) (*types.Session, error) {
	var updated *types.Session
	err := r.Tx(ctx, func(q Querier) error {
		var data string
		err := q.QueryRowContext(ctx,
			`SELECT data_json FROM session WHERE id = ?`, sessionID).Scan(&data)
		if err != nil {
			return notFound("session", sessionID, err)
		}

		var s types.Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return err
		}
		mutate(&s)
		s.Time.Updated = time.Now().UnixMilli()
		updated = &s
		return r.putSession(ctx, q, &s)
	})
	if err != nil {
		return nil, err
	}

	r.bus.Publish(event.SessionUpdated, event.SessionUpdatedData{Info: updated})
	return updated, nil
}

// ForkSession creates a child session carrying a copy of the parent's
// history up to and including messageID (or all of it when empty).
func (r *Repository) ForkSession(ctx context.Context, sessionID, messageID string) (*types.Session, error) {
	parent, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	fork, err := r.CreateSession(ctx, parent.ProjectID, parent.Directory, parent.Title+" (fork)", &parent.ID)
	if err != nil {
		return nil, err
	}

	messages, err := r.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Load parts up front: the transaction below owns the write
	// connection.
	partsByMessage := make(map[string][]types.Part, len(messages))
	for _, m := range messages {
		parts, err := r.ListParts(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		partsByMessage[m.ID] = parts
		if m.ID == messageID {
			break
		}
	}

	err = r.Tx(ctx, func(q Querier) error {
		for _, m := range messages {
			parts := partsByMessage[m.ID]

			copied := *m
			copied.ID = id.Ascending(id.Message)
			copied.SessionID = fork.ID
			if err := r.SaveMessageTx(ctx, q, &copied); err != nil {
				return err
			}

			for _, p := range parts {
				data, err := types.MarshalPart(p)
				if err != nil {
					return err
				}
				clone, err := types.UnmarshalPart(data)
				if err != nil {
					return err
				}
				base := types.PartBase{
					ID:        id.Ascending(id.Part),
					MessageID: copied.ID,
					SessionID: fork.ID,
				}
				rebase(clone, base)
				if err := r.SavePartTx(ctx, q, clone, ""); err != nil {
					return err
				}
			}

			if m.ID == messageID {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fork, nil
}

func rebase(p types.Part, base types.PartBase) {
	switch v := p.(type) {
	case *types.TextPart:
		v.PartBase = base
	case *types.ReasoningPart:
		v.PartBase = base
	case *types.ToolPart:
		v.PartBase = base
	case *types.FilePart:
		v.PartBase = base
	case *types.StepStartPart:
		v.PartBase = base
	case *types.StepFinishPart:
		v.PartBase = base
	case *types.PatchPart:
		v.PartBase = base
	}
}

// DeleteSession drops a session; owned rows cascade.
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	s, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session WHERE id = ?`, sessionID); err != nil {
		return err
	}
	r.bus.Publish(event.SessionDeleted, event.SessionDeletedData{Info: s})
	return nil
}

func (r *Repository) putSession(ctx context.Context, q Querier, s *types.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO session (id, project_id, parent_id, created_at, updated_at, data_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = excluded.parent_id,
			updated_at = excluded.updated_at,
			data_json = excluded.data_json`,
		s.ID, s.ProjectID, s.ParentID, s.Time.Created, s.Time.Updated, string(data))
	return err
}

func collectSessions(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]*types.Session, error) {
	var sessions []*types.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var s types.Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}
