package repo

import (
	"context"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/pkg/types"
)

// SavePart upserts a part and publishes message.part.updated. Delta
// carries the appended suffix when the update is a streaming append;
// it is empty for state changes.
func (r *Repository) SavePart(ctx context.Context, p types.Part, delta string) error {
	if err := r.putPart(ctx, r.db, p); err != nil {
		return err
	}
	r.bus.Publish(event.MessagePartUpdated, event.MessagePartUpdatedData{Part: p, Delta: delta})
	return nil
}

// SavePartTx upserts a part inside an existing transaction.
func (r *Repository) SavePartTx(ctx context.Context, q Querier, p types.Part, delta string) error {
	if err := r.putPart(ctx, q, p); err != nil {
		return err
	}
	r.bus.Publish(event.MessagePartUpdated, event.MessagePartUpdatedData{Part: p, Delta: delta})
	return nil
}

// GetPart loads one part.
func (r *Repository) GetPart(ctx context.Context, partID string) (types.Part, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data_json FROM part WHERE id = ?`, partID).Scan(&data)
	if err != nil {
		return nil, notFound("part", partID, err)
	}
	return types.UnmarshalPart([]byte(data))
}

// ListParts returns a message's parts ordered by id. Part ids are
// minted ascending, so this is stream order.
func (r *Repository) ListParts(ctx context.Context, messageID string) ([]types.Part, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data_json FROM part WHERE message_id = ? ORDER BY id`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []types.Part
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := types.UnmarshalPart([]byte(data))
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// ListSessionParts returns every part of a session ordered by message
// then part id, for prompt reconstruction.
func (r *Repository) ListSessionParts(ctx context.Context, sessionID string) ([]types.Part, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data_json FROM part WHERE session_id = ? ORDER BY message_id, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []types.Part
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := types.UnmarshalPart([]byte(data))
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (r *Repository) putPart(ctx context.Context, q Querier, p types.Part) error {
	data, err := types.MarshalPart(p)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO part (id, message_id, session_id, data_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data_json = excluded.data_json`,
		p.PartID(), p.PartMessageID(), p.PartSessionID(), string(data))
	return err
}
