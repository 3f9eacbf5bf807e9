package repo

import (
	"context"
	"encoding/json"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/pkg/types"
)

// SaveMessage upserts a message row and publishes message.updated.
func (r *Repository) SaveMessage(ctx context.Context, m *types.Message) error {
	if err := r.putMessage(ctx, r.db, m); err != nil {
		return err
	}
	r.bus.Publish(event.MessageUpdated, event.MessageUpdatedData{Info: m})
	return nil
}

// SaveMessageTx upserts a message inside an existing transaction; the
// event still fires immediately (event publication is fire-and-forget
// and not transactional).
func (r *Repository) SaveMessageTx(ctx context.Context, q Querier, m *types.Message) error {
	if err := r.putMessage(ctx, q, m); err != nil {
		return err
	}
	r.bus.Publish(event.MessageUpdated, event.MessageUpdatedData{Info: m})
	return nil
}

// GetMessage loads one message.
func (r *Repository) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data_json FROM message WHERE id = ?`, messageID).Scan(&data)
	if err != nil {
		return nil, notFound("message", messageID, err)
	}

	var m types.Message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a session's messages ordered by id, which is
// creation order.
func (r *Repository) ListMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data_json FROM message WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*types.Message
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m types.Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// DeleteMessage removes one message; its parts cascade.
func (r *Repository) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM message WHERE id = ? AND session_id = ?`, messageID, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NewNotFoundError("message", messageID)
	}
	r.bus.Publish(event.MessageRemoved, event.MessageRemovedData{
		SessionID: sessionID, MessageID: messageID,
	})
	return nil
}

func (r *Repository) putMessage(ctx context.Context, q Querier, m *types.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO message (id, session_id, created_at, data_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data_json = excluded.data_json`,
		m.ID, m.SessionID, m.Time.Created, string(data))
	return err
}
