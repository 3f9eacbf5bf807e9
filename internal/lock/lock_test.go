package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/core/pkg/types"
)

func TestAcquireIsExclusive(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	tok, err := m.Acquire(ctx, "ses_1")
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "ses_1")
	assert.ErrorIs(t, err, &types.NamedError{Name: types.ErrBusy})
	assert.Error(t, m.AssertUnlocked("ses_1"))

	// Other sessions are unaffected.
	other, err := m.Acquire(ctx, "ses_2")
	require.NoError(t, err)
	other.Release()

	tok.Release()
	assert.NoError(t, m.AssertUnlocked("ses_1"))
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := NewManager()
	tok, err := m.Acquire(context.Background(), "ses_1")
	require.NoError(t, err)

	tok.Release()
	tok.Release()

	again, err := m.Acquire(context.Background(), "ses_1")
	require.NoError(t, err)
	again.Release()
}

func TestCancelFiresTokenSignal(t *testing.T) {
	m := NewManager()
	tok, err := m.Acquire(context.Background(), "ses_1")
	require.NoError(t, err)
	defer tok.Release()

	require.True(t, m.Cancel("ses_1"))

	select {
	case <-tok.Context().Done():
	default:
		t.Fatal("token context must be cancelled")
	}
	assert.True(t, tok.Cancelled())

	// Lock stays held until the turn releases it.
	assert.True(t, m.Locked("ses_1"))
}

func TestCancelIdleSessionIsNoop(t *testing.T) {
	m := NewManager()
	assert.False(t, m.Cancel("ses_ghost"))
}

func TestReleaseWithoutCancelIsNotCancelled(t *testing.T) {
	m := NewManager()
	tok, err := m.Acquire(context.Background(), "ses_1")
	require.NoError(t, err)
	tok.Release()
	assert.False(t, tok.Cancelled())
}

func TestCancelAll(t *testing.T) {
	m := NewManager()
	a, err := m.Acquire(context.Background(), "ses_1")
	require.NoError(t, err)
	b, err := m.Acquire(context.Background(), "ses_2")
	require.NoError(t, err)

	m.CancelAll()
	assert.True(t, a.Cancelled())
	assert.True(t, b.Cancelled())
}

func TestParentContextPropagates(t *testing.T) {
	m := NewManager()
	parent, cancel := context.WithCancel(context.Background())
	tok, err := m.Acquire(parent, "ses_1")
	require.NoError(t, err)
	defer tok.Release()

	cancel()
	<-tok.Context().Done()
	assert.False(t, tok.Cancelled(), "parent expiry is not a user cancel")
}
