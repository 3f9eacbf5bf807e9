package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/core/internal/id"
	"github.com/opencode-ai/core/pkg/types"
)

func TestOverflowBoundary(t *testing.T) {
	model := &types.Model{ContextWindow: 100_000, MaxOutput: 8192}
	limit := 100_000 - 8192

	assert.False(t, Overflow(types.TokenUsage{Input: limit}, model))
	assert.True(t, Overflow(types.TokenUsage{Input: limit + 1}, model),
		"overflow at exactly context-output boundary plus one")

	// A huge output limit is capped by the reserve.
	big := &types.Model{ContextWindow: 100_000, MaxOutput: 90_000}
	assert.True(t, Overflow(types.TokenUsage{Input: 100_000 - 32_000 + 1}, big))

	// Unknown window never overflows.
	assert.False(t, Overflow(types.TokenUsage{Input: 1 << 30}, &types.Model{}))
}

// seedConversation stores n user/assistant turns, each assistant turn
// carrying one completed tool part with ~outputTokens of output.
func seedConversation(t *testing.T, env *testEnv, turns, outputTokens int) {
	t.Helper()
	ctx := context.Background()
	output := strings.Repeat("abcd", outputTokens) // 4 chars per token estimate

	for i := 0; i < turns; i++ {
		user := &types.Message{
			ID: id.Ascending(id.Message), SessionID: env.session.ID, Role: "user",
			Time: types.MessageTime{Created: nowMilli()},
		}
		require.NoError(t, env.repo.SaveMessage(ctx, user))

		assistant := &types.Message{
			ID: id.Ascending(id.Message), SessionID: env.session.ID, Role: "assistant",
			ParentID: user.ID, Time: types.MessageTime{Created: nowMilli()},
		}
		require.NoError(t, env.repo.SaveMessage(ctx, assistant))

		part := &types.ToolPart{
			PartBase: newPartBase(env.session.ID, assistant.ID),
			CallID:   "call", Tool: "bash",
			State: types.ToolState{
				Status: types.ToolStateCompleted,
				Output: output,
			},
		}
		require.NoError(t, env.repo.SavePart(ctx, part, ""))
	}
}

func countCompacted(t *testing.T, env *testEnv) int {
	t.Helper()
	ctx := context.Background()
	parts, err := env.repo.ListSessionParts(ctx, env.session.ID)
	require.NoError(t, err)

	n := 0
	for _, p := range parts {
		if tp, ok := p.(*types.ToolPart); ok && tp.State.Time.Compacted != nil {
			n++
		}
	}
	return n
}

func TestPruneMarksOldOutputs(t *testing.T) {
	env := newTestEnv(t)
	// 10 turns x 20k tokens: the newest 2 turns are protected, the
	// next ~40k tokens are the protected budget, the rest is marked.
	seedConversation(t, env, 10, 20_000)

	pruned, err := env.service.Prune(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.Greater(t, pruned, PruneMinimum)
	assert.Greater(t, countCompacted(t, env), 0)

	// Protected turns keep their outputs.
	messages, err := env.repo.ListMessages(context.Background(), env.session.ID)
	require.NoError(t, err)
	lastAssistant := messages[len(messages)-1]
	parts, err := env.repo.ListParts(context.Background(), lastAssistant.ID)
	require.NoError(t, err)
	for _, p := range parts {
		if tp, ok := p.(*types.ToolPart); ok {
			assert.Nil(t, tp.State.Time.Compacted, "recent outputs stay")
		}
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	seedConversation(t, env, 10, 20_000)

	first, err := env.service.Prune(context.Background(), env.session.ID)
	require.NoError(t, err)
	require.Greater(t, first, 0)
	marked := countCompacted(t, env)

	second, err := env.service.Prune(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.Zero(t, second, "a second prune without new turns marks nothing")
	assert.Equal(t, marked, countCompacted(t, env))
}

func TestPruneBelowMinimumIsNoop(t *testing.T) {
	env := newTestEnv(t)
	seedConversation(t, env, 3, 1_000)

	pruned, err := env.service.Prune(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.Zero(t, pruned)
	assert.Zero(t, countCompacted(t, env))
}

func TestCompactedOutputElidedFromReplayButKeptForUI(t *testing.T) {
	env := newTestEnv(t)
	seedConversation(t, env, 10, 20_000)

	_, err := env.service.Prune(context.Background(), env.session.ID)
	require.NoError(t, err)
	require.Greater(t, countCompacted(t, env), 0)

	// Prompt reconstruction elides the compacted outputs.
	agent := env.service.Agent("build")
	model := env.provider.models[0]
	assistant := &types.Message{ID: id.Ascending(id.Message), SessionID: env.session.ID, Role: "assistant"}
	req, err := env.service.buildRequest(context.Background(), env.session, &agent, &model, assistant)
	require.NoError(t, err)

	elided := 0
	for _, m := range req.Messages {
		if m.Content == elidedOutput {
			elided++
		}
	}
	assert.Greater(t, elided, 0, "compacted outputs are elided for the model")

	// UI retrieval still returns the full stored output.
	parts, err := env.repo.ListSessionParts(context.Background(), env.session.ID)
	require.NoError(t, err)
	for _, p := range parts {
		if tp, ok := p.(*types.ToolPart); ok && tp.State.Time.Compacted != nil {
			assert.NotEmpty(t, tp.State.Output)
			assert.NotEqual(t, elidedOutput, tp.State.Output)
		}
	}
}

func TestReplayStartsAtSummary(t *testing.T) {
	env := newTestEnv(t)
	seedConversation(t, env, 3, 10)

	ctx := context.Background()
	summary := &types.Message{
		ID: id.Ascending(id.Message), SessionID: env.session.ID, Role: "assistant",
		Summary: true, Time: types.MessageTime{Created: nowMilli()},
	}
	require.NoError(t, env.repo.SaveMessage(ctx, summary))
	require.NoError(t, env.repo.SavePart(ctx, &types.TextPart{
		PartBase: newPartBase(env.session.ID, summary.ID),
		Text:     "everything so far, condensed",
	}, ""))

	after := &types.Message{
		ID: id.Ascending(id.Message), SessionID: env.session.ID, Role: "user",
		Time: types.MessageTime{Created: nowMilli()},
	}
	require.NoError(t, env.repo.SaveMessage(ctx, after))
	require.NoError(t, env.repo.SavePart(ctx, &types.TextPart{
		PartBase: newPartBase(env.session.ID, after.ID),
		Text:     "and now this",
	}, ""))

	agent := env.service.Agent("build")
	model := env.provider.models[0]
	inflight := &types.Message{ID: id.Ascending(id.Message), SessionID: env.session.ID, Role: "assistant"}
	req, err := env.service.buildRequest(ctx, env.session, &agent, &model, inflight)
	require.NoError(t, err)

	// System + summary assistant message + trailing user message.
	require.Len(t, req.Messages, 3)
	assert.Contains(t, req.Messages[1].Content, "condensed")
	assert.Contains(t, req.Messages[2].Content, "and now this")
}
