// Package repo implements the session repository: CRUD over projects,
// sessions, messages, parts, todos, diffs, permissions and shares, on
// top of the SQLite store. Every mutation publishes its bus event;
// per-turn persistence runs inside a single transaction.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/pkg/types"
)

// Repository mediates all store access for the engine.
type Repository struct {
	db  *sql.DB
	bus *event.Bus
}

// New creates a repository over an open database.
func New(db *sql.DB, bus *event.Bus) *Repository {
	return &Repository{db: db, bus: bus}
}

// Bus exposes the event bus the repository publishes on.
func (r *Repository) Bus() *event.Bus { return r.bus }

// Querier abstracts *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Tx runs fn inside one transaction. Any failure aborts the whole
// persistence step; readers never observe a partial write.
func (r *Repository) Tx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func notFound(what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return types.NewNotFoundError(what, id)
	}
	return err
}
