package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencode-ai/core/internal/logging"
	"github.com/opencode-ai/core/pkg/types"
)

// MarkerFile is written inside the legacy storage directory once the
// import has completed, preventing re-runs.
const MarkerFile = "sqlite-migrated"

// ImportStats summarises one import run.
type ImportStats struct {
	Projects    int
	Sessions    int
	Messages    int
	Parts       int
	Aux         int
	Orphans     int
	AlreadyDone bool
}

// ImportLegacy performs the one-shot JSON-to-SQLite import from
// <data>/storage. Rows are FK-validated against what was imported
// before them; orphans are skipped with a warning. All inserts ignore
// conflicts, so a crashed run can simply be repeated; the marker file
// is written last.
func ImportLegacy(ctx context.Context, database *sql.DB, dataDir string) (*ImportStats, error) {
	storageDir := filepath.Join(dataDir, "storage")
	tree := newLegacyTree(storageDir)
	stats := &ImportStats{}

	if !tree.exists() {
		return stats, nil
	}
	if _, err := os.Stat(filepath.Join(storageDir, MarkerFile)); err == nil {
		stats.AlreadyDone = true
		return stats, nil
	}

	log := logging.Component("import")
	log.Info().Str("dir", storageDir).Msg("importing legacy storage")

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	projects := map[string]bool{}
	err = tree.scan([]string{"project"}, func(key string, data json.RawMessage) error {
		var p types.Project
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Str("project", key).Err(err).Msg("skipping unreadable project")
			return nil
		}
		if p.ID == "" {
			p.ID = key
		}
		sandboxes, _ := json.Marshal(p.Sandboxes)
		var iconURL, iconColor any
		if p.Icon != nil {
			iconURL, iconColor = p.Icon.URL, p.Icon.Color
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO project
				(id, worktree, vcs, name, icon_url, icon_color, time_created, time_updated, time_initialized, sandboxes_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Worktree, p.VCS, p.Name, iconURL, iconColor,
			p.Time.Created, p.Time.Updated, p.Time.Initialized, string(sandboxes))
		if err != nil {
			return err
		}
		projects[p.ID] = true
		stats.Projects++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import projects: %w", err)
	}

	sessions := map[string]bool{}
	for _, projectID := range tree.list("session") {
		if !projects[projectID] {
			log.Warn().Str("project", projectID).Msg("skipping sessions of unknown project")
			stats.Orphans++
			continue
		}
		err = tree.scan([]string{"session", projectID}, func(key string, data json.RawMessage) error {
			var s types.Session
			if err := json.Unmarshal(data, &s); err != nil {
				log.Warn().Str("session", key).Err(err).Msg("skipping unreadable session")
				return nil
			}
			if s.ID == "" {
				s.ID = key
			}
			s.ProjectID = projectID
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO session (id, project_id, parent_id, created_at, updated_at, data_json)
				VALUES (?, ?, ?, ?, ?, ?)`,
				s.ID, s.ProjectID, s.ParentID, s.Time.Created, s.Time.Updated, string(mustJSON(s)))
			if err != nil {
				return err
			}
			sessions[s.ID] = true
			stats.Sessions++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to import sessions: %w", err)
		}
	}

	messages := map[string]string{} // message id -> session id
	for _, sessionID := range tree.list("message") {
		if !sessions[sessionID] {
			log.Warn().Str("session", sessionID).Msg("skipping messages of unknown session")
			stats.Orphans++
			continue
		}
		err = tree.scan([]string{"message", sessionID}, func(key string, data json.RawMessage) error {
			var m types.Message
			if err := json.Unmarshal(data, &m); err != nil {
				log.Warn().Str("message", key).Err(err).Msg("skipping unreadable message")
				return nil
			}
			if m.ID == "" {
				m.ID = key
			}
			m.SessionID = sessionID
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO message (id, session_id, created_at, data_json)
				VALUES (?, ?, ?, ?)`,
				m.ID, m.SessionID, m.Time.Created, string(mustJSON(m)))
			if err != nil {
				return err
			}
			messages[m.ID] = sessionID
			stats.Messages++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to import messages: %w", err)
		}
	}

	for _, messageID := range tree.list("part") {
		sessionID, ok := messages[messageID]
		if !ok {
			log.Warn().Str("message", messageID).Msg("skipping parts of unknown message")
			stats.Orphans++
			continue
		}
		err = tree.scan([]string{"part", messageID}, func(key string, data json.RawMessage) error {
			part, err := types.UnmarshalPart(data)
			if err != nil {
				log.Warn().Str("part", key).Err(err).Msg("skipping unreadable part")
				return nil
			}
			_, execErr := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO part (id, message_id, session_id, data_json)
				VALUES (?, ?, ?, ?)`,
				part.PartID(), messageID, sessionID, string(data))
			if execErr != nil {
				return execErr
			}
			stats.Parts++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to import parts: %w", err)
		}
	}

	// Per-owner aux tables: one JSON document per session or project.
	aux := []struct {
		kind  string
		table string
		owner map[string]bool
	}{
		{"todo", "todo", sessions},
		{"diff", "session_diff", sessions},
		{"session_share", "session_share", sessions},
		{"permission", "permission", projects},
	}
	for _, a := range aux {
		err = tree.scan([]string{a.kind}, func(key string, data json.RawMessage) error {
			if !a.owner[key] {
				log.Warn().Str("kind", a.kind).Str("owner", key).Msg("skipping orphaned row")
				stats.Orphans++
				return nil
			}
			col := "session_id"
			if a.table == "permission" {
				col = "project_id"
			}
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s, data_json) VALUES (?, ?)`, a.table, col),
				key, string(data))
			if err != nil {
				return err
			}
			stats.Aux++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to import %s: %w", a.kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	// Marker written after the commit so a crash before this point
	// re-runs the (idempotent) import.
	marker := filepath.Join(storageDir, MarkerFile)
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(marker, []byte(stamp), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write import marker: %w", err)
	}

	log.Info().
		Int("projects", stats.Projects).
		Int("sessions", stats.Sessions).
		Int("messages", stats.Messages).
		Int("parts", stats.Parts).
		Int("orphans", stats.Orphans).
		Msg("legacy import complete")
	return stats, nil
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
