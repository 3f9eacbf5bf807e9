package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/core/internal/db"
	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/repo"
	"github.com/opencode-ai/core/pkg/types"
)

func newService(t *testing.T) *Service {
	t.Helper()
	database, err := db.Connect(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })
	return NewService(repo.New(database, bus))
}

func TestResolveWithoutVCSUsesGlobal(t *testing.T) {
	s := newService(t)
	dir := t.TempDir()

	p, err := s.Resolve(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, types.GlobalProjectID, p.ID)
	assert.Equal(t, dir, p.Worktree)
	assert.Empty(t, p.VCS)
}

func TestResolveIsStableAcrossMoves(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	first, err := s.Resolve(ctx, t.TempDir())
	require.NoError(t, err)

	moved := t.TempDir()
	second, err := s.Resolve(ctx, moved)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "id is stable across worktree moves")
	assert.Equal(t, moved, second.Worktree, "worktree follows the directory")
}

func TestMarkInitializedIsOneShot(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	p, err := s.Resolve(ctx, t.TempDir())
	require.NoError(t, err)
	require.Nil(t, p.Time.Initialized)

	require.NoError(t, s.MarkInitialized(ctx, p.ID))
	after, err := s.repo.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, after.Time.Initialized)

	stamp := *after.Time.Initialized
	require.NoError(t, s.MarkInitialized(ctx, p.ID))
	again, err := s.repo.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, stamp, *again.Time.Initialized)
}
