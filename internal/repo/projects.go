package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/pkg/types"
)

// UpsertProject inserts or replaces a project row by primary key and
// publishes project.updated.
func (r *Repository) UpsertProject(ctx context.Context, p *types.Project) error {
	p.Time.Updated = time.Now().UnixMilli()
	if p.Time.Created == 0 {
		p.Time.Created = p.Time.Updated
	}

	sandboxes, err := json.Marshal(p.Sandboxes)
	if err != nil {
		return err
	}
	var iconURL, iconColor any
	if p.Icon != nil {
		iconURL, iconColor = p.Icon.URL, p.Icon.Color
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO project (id, worktree, vcs, name, icon_url, icon_color, time_created, time_updated, time_initialized, sandboxes_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			worktree = excluded.worktree,
			vcs = excluded.vcs,
			name = excluded.name,
			icon_url = excluded.icon_url,
			icon_color = excluded.icon_color,
			time_updated = excluded.time_updated,
			time_initialized = excluded.time_initialized,
			sandboxes_json = excluded.sandboxes_json`,
		p.ID, p.Worktree, p.VCS, p.Name, iconURL, iconColor,
		p.Time.Created, p.Time.Updated, p.Time.Initialized, string(sandboxes))
	if err != nil {
		return err
	}

	r.bus.Publish(event.ProjectUpdated, event.ProjectUpdatedData{Info: p})
	return nil
}

// GetProject loads one project.
func (r *Repository) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, worktree, vcs, name, icon_url, icon_color, time_created, time_updated, time_initialized, sandboxes_json
		FROM project WHERE id = ?`, id)
	return scanProject(row)
}

// ListProjects returns all known projects.
func (r *Repository) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, worktree, vcs, name, icon_url, icon_color, time_created, time_updated, time_initialized, sandboxes_json
		FROM project ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*types.Project, error) {
	var p types.Project
	var vcs, name, iconURL, iconColor *string
	var initialized *int64
	var sandboxes string
	err := row.Scan(&p.ID, &p.Worktree, &vcs, &name, &iconURL, &iconColor,
		&p.Time.Created, &p.Time.Updated, &initialized, &sandboxes)
	if err != nil {
		return nil, notFound("project", p.ID, err)
	}
	if vcs != nil {
		p.VCS = *vcs
	}
	if name != nil {
		p.Name = *name
	}
	if iconURL != nil || iconColor != nil {
		p.Icon = &types.Icon{}
		if iconURL != nil {
			p.Icon.URL = *iconURL
		}
		if iconColor != nil {
			p.Icon.Color = *iconColor
		}
	}
	p.Time.Initialized = initialized
	if err := json.Unmarshal([]byte(sandboxes), &p.Sandboxes); err != nil {
		return nil, err
	}
	return &p, nil
}
