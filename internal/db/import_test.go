package db

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/core/pkg/types"
)

func writeLegacy(t *testing.T, dataDir string, path []string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)

	full := filepath.Join(append([]string{dataDir, "storage"}, path...)...) + ".json"
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
}

func seedLegacyTree(t *testing.T, dataDir string) {
	t.Helper()
	writeLegacy(t, dataDir, []string{"project", "prj_1"}, types.Project{
		ID: "prj_1", Worktree: "/w", Time: types.ProjectTime{Created: 1, Updated: 2},
	})
	writeLegacy(t, dataDir, []string{"session", "prj_1", "ses_1"}, types.Session{
		ID: "ses_1", ProjectID: "prj_1", Title: "t", Time: types.SessionTime{Created: 3, Updated: 4},
	})
	writeLegacy(t, dataDir, []string{"message", "ses_1", "msg_1"}, types.Message{
		ID: "msg_1", SessionID: "ses_1", Role: "user", Time: types.MessageTime{Created: 5},
	})
	writeLegacy(t, dataDir, []string{"part", "msg_1", "prt_1"}, map[string]any{
		"id": "prt_1", "messageID": "msg_1", "sessionID": "ses_1", "type": "text", "text": "hi",
	})
	// Orphans: session under unknown project, parts under unknown message.
	writeLegacy(t, dataDir, []string{"session", "prj_ghost", "ses_2"}, types.Session{ID: "ses_2"})
	writeLegacy(t, dataDir, []string{"part", "msg_ghost", "prt_2"}, map[string]any{
		"id": "prt_2", "type": "text", "text": "lost",
	})
	writeLegacy(t, dataDir, []string{"todo", "ses_1"}, []types.Todo{{ID: "1", Content: "x", Status: "pending"}})
}

func TestImportLegacy(t *testing.T) {
	dataDir := t.TempDir()
	seedLegacyTree(t, dataDir)

	database, err := Connect(context.Background(), dataDir)
	require.NoError(t, err)
	defer database.Close()

	stats, err := ImportLegacy(context.Background(), database, dataDir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Projects)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Messages)
	assert.Equal(t, 1, stats.Parts)
	assert.Equal(t, 1, stats.Aux)
	assert.Equal(t, 2, stats.Orphans)

	var n int
	require.NoError(t, database.QueryRow(`SELECT count(*) FROM session`).Scan(&n))
	assert.Equal(t, 1, n, "orphaned session is not imported")

	// Marker is written last and recorded.
	marker := filepath.Join(dataDir, "storage", MarkerFile)
	content, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.NotEmpty(t, content)
}

func TestImportLegacyIsOneShot(t *testing.T) {
	dataDir := t.TempDir()
	seedLegacyTree(t, dataDir)

	database, err := Connect(context.Background(), dataDir)
	require.NoError(t, err)
	defer database.Close()

	_, err = ImportLegacy(context.Background(), database, dataDir)
	require.NoError(t, err)

	again, err := ImportLegacy(context.Background(), database, dataDir)
	require.NoError(t, err)
	assert.True(t, again.AlreadyDone)
	assert.Zero(t, again.Sessions)
}

func TestImportLegacyNoTree(t *testing.T) {
	dataDir := t.TempDir()
	database, err := Connect(context.Background(), dataDir)
	require.NoError(t, err)
	defer database.Close()

	stats, err := ImportLegacy(context.Background(), database, dataDir)
	require.NoError(t, err)
	assert.Zero(t, stats.Projects)
	assert.False(t, stats.AlreadyDone)
}
