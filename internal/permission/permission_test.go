package permission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/pkg/types"
)

func TestEvaluateFirstMatchWins(t *testing.T) {
	rules := []types.PermissionRule{
		{Pattern: "bash:git push *", Action: types.ActionDeny},
		{Pattern: "bash:git *", Action: types.ActionAllow},
		{Pattern: "edit:src/**", Action: types.ActionAllow},
		{Pattern: "webfetch", Action: types.ActionDeny},
	}

	assert.Equal(t, types.ActionDeny, Evaluate("bash", "git push origin", rules))
	assert.Equal(t, types.ActionAllow, Evaluate("bash", "git commit", rules))
	assert.Equal(t, types.ActionAllow, Evaluate("edit", "src/a/b.go", rules))
	assert.Equal(t, types.ActionDeny, Evaluate("webfetch", "https://x", rules))
	assert.Equal(t, types.ActionAsk, Evaluate("bash", "rm -rf /", rules), "default is ask")
}

func TestMergePrecedence(t *testing.T) {
	project := []types.PermissionRule{{Pattern: "bash", Action: types.ActionDeny}}
	agent := []types.PermissionRule{{Pattern: "bash", Action: types.ActionAsk}}
	session := []types.PermissionRule{{Pattern: "bash", Action: types.ActionAllow}}

	assert.Equal(t, types.ActionAllow, Evaluate("bash", "ls", Merge(session, agent, project)))
	assert.Equal(t, types.ActionAsk, Evaluate("bash", "ls", Merge(nil, agent, project)))
	assert.Equal(t, types.ActionDeny, Evaluate("bash", "ls", Merge(nil, nil, project)))
}

func TestAskAllowAndDenyResolveImmediately(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	g := NewGate(bus)

	allow := []types.PermissionRule{{Pattern: "read", Action: types.ActionAllow}}
	require.NoError(t, g.Ask(context.Background(), AskRequest{Tool: "read", Key: "x", Rules: allow}))

	deny := []types.PermissionRule{{Pattern: "bash", Action: types.ActionDeny}}
	err := g.Ask(context.Background(), AskRequest{Tool: "bash", Key: "rm", Rules: deny})
	assert.ErrorIs(t, err, &types.NamedError{Name: types.ErrPermissionDenied})
}

func TestAskPublishesAndResolvesOnReply(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	g := NewGate(bus)

	var mu sync.Mutex
	var published types.PermissionRequest
	bus.Subscribe(event.PermissionUpdated, func(e event.Event) {
		mu.Lock()
		published = e.Properties.(event.PermissionUpdatedData).PermissionRequest
		mu.Unlock()
	})

	var replied event.PermissionRepliedData
	bus.Subscribe(event.PermissionReplied, func(e event.Event) {
		mu.Lock()
		replied = e.Properties.(event.PermissionRepliedData)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Ask(context.Background(), AskRequest{
			SessionID: "ses_1", CallID: "call_1", Tool: "bash", Key: "git push origin",
			Patterns: []string{"bash:git push *"},
		})
	}()

	// Wait for the ask to surface.
	var askID string
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		askID = published.ID
		return askID != ""
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "ses_1", published.SessionID)
	assert.NotEmpty(t, published.Patterns)

	require.NoError(t, g.Reply(askID, types.ReplyOnce))
	require.NoError(t, <-done)

	mu.Lock()
	assert.Equal(t, askID, replied.PermissionID)
	assert.Equal(t, types.ReplyOnce, replied.Response)
	mu.Unlock()
}

func TestAskRejectDenies(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	g := NewGate(bus)

	askID := make(chan string, 1)
	bus.Subscribe(event.PermissionUpdated, func(e event.Event) {
		askID <- e.Properties.(event.PermissionUpdatedData).ID
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Ask(context.Background(), AskRequest{SessionID: "ses_1", Tool: "bash", Key: "x"})
	}()

	require.NoError(t, g.Reply(<-askID, types.ReplyReject))
	err := <-done
	assert.ErrorIs(t, err, &types.NamedError{Name: types.ErrPermissionDenied})
}

func TestAskAlwaysPersistsRules(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	g := NewGate(bus)

	var persisted []types.PermissionRule
	g.Persist = func(_ context.Context, sessionID string, rules []types.PermissionRule) error {
		persisted = rules
		return nil
	}

	askID := make(chan string, 1)
	bus.Subscribe(event.PermissionUpdated, func(e event.Event) {
		askID <- e.Properties.(event.PermissionUpdatedData).ID
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Ask(context.Background(), AskRequest{
			SessionID: "ses_1", Tool: "bash", Key: "git status",
			Patterns: []string{"bash:git status"},
		})
	}()

	require.NoError(t, g.Reply(<-askID, types.ReplyAlways))
	require.NoError(t, <-done)
	require.Len(t, persisted, 1)
	assert.Equal(t, types.PermissionRule{Pattern: "bash:git status", Action: types.ActionAllow}, persisted[0])
}

func TestAskResolvesRejectOnCancel(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	g := NewGate(bus)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	bus.Subscribe(event.PermissionUpdated, func(event.Event) { close(started) })

	done := make(chan error, 1)
	go func() {
		done <- g.Ask(ctx, AskRequest{SessionID: "ses_1", Tool: "bash", Key: "x"})
	}()

	<-started
	cancel()
	err := <-done
	assert.ErrorIs(t, err, &types.NamedError{Name: types.ErrPermissionDenied})
}

func TestReplyUnknownAsk(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	g := NewGate(bus)
	err := g.Reply("per_ghost", types.ReplyOnce)
	assert.ErrorIs(t, err, &types.NamedError{Name: types.ErrNotFound})
}

func TestBashKeysAndPatterns(t *testing.T) {
	assert.Equal(t, []string{"git commit"}, BashKeys("git commit -m 'x'"))
	assert.Equal(t, []string{"ls"}, BashKeys("ls"))
	assert.ElementsMatch(t, []string{"cat a.txt", "grep foo"}, BashKeys("cat a.txt | grep foo"))

	assert.Equal(t, []string{"bash:git push *"}, BashPatterns("git push origin main"))
	assert.Equal(t, []string{"bash:ls"}, BashPatterns("ls"))
	assert.Equal(t, []string{"bash:ls *"}, BashPatterns("ls -la"))
}
