package permission

import (
	"context"
	"sync"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/id"
	"github.com/opencode-ai/core/internal/logging"
	"github.com/opencode-ai/core/pkg/types"
)

// Gate resolves tool-call permissions. Allow and deny resolve
// immediately from the ruleset; ask publishes permission.updated and
// blocks the calling tool until a reply or the turn's cancellation.
type Gate struct {
	bus *event.Bus

	// Persist appends "always" rules to the session override ruleset.
	// Wired to the repository at process init.
	Persist func(ctx context.Context, sessionID string, rules []types.PermissionRule) error

	mu      sync.Mutex
	pending map[string]pendingAsk
}

type pendingAsk struct {
	sessionID string
	replyCh   chan string
}

// NewGate creates a gate publishing on bus.
func NewGate(bus *event.Bus) *Gate {
	return &Gate{bus: bus, pending: make(map[string]pendingAsk)}
}

// AskRequest describes one interactive permission request.
type AskRequest struct {
	SessionID string
	MessageID string
	CallID    string
	Tool      string
	Key       string
	// Patterns are the rules offered for an "always" reply, e.g.
	// "bash:git *". When empty, "tool:key" is offered.
	Patterns []string
	Metadata map[string]any
	Rules    []types.PermissionRule
}

// Ask enforces the effective action for the request. It returns nil
// when allowed, a PermissionDenied error when denied or rejected, and
// blocks on interactive asks. A cancelled ctx resolves a pending ask
// as reject.
func (g *Gate) Ask(ctx context.Context, req AskRequest) error {
	switch Evaluate(req.Tool, req.Key, req.Rules) {
	case types.ActionAllow:
		return nil
	case types.ActionDeny:
		return types.NewPermissionDeniedError("permission denied by ruleset")
	}

	patterns := req.Patterns
	if len(patterns) == 0 {
		patterns = []string{req.Tool + ":" + req.Key}
	}

	askID := id.Ascending(id.Permission)
	replyCh := make(chan string, 1)

	g.mu.Lock()
	g.pending[askID] = pendingAsk{sessionID: req.SessionID, replyCh: replyCh}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, askID)
		g.mu.Unlock()
	}()

	g.bus.Publish(event.PermissionUpdated, event.PermissionUpdatedData{
		PermissionRequest: types.PermissionRequest{
			ID:        askID,
			SessionID: req.SessionID,
			MessageID: req.MessageID,
			CallID:    req.CallID,
			Tool:      req.Tool,
			Patterns:  patterns,
			Metadata:  req.Metadata,
		},
	})

	select {
	case <-ctx.Done():
		// The turn unwound; treat the ask as rejected.
		return types.NewPermissionDeniedError("permission request cancelled")
	case response := <-replyCh:
		switch response {
		case types.ReplyAlways:
			g.persistAlways(ctx, req.SessionID, patterns)
			return nil
		case types.ReplyOnce:
			return nil
		default:
			return types.NewPermissionDeniedError("permission rejected by user")
		}
	}
}

// Reply resolves a pending ask and publishes permission.replied. It
// fails with NotFound for unknown or already-resolved asks.
func (g *Gate) Reply(permissionID, response string) error {
	g.mu.Lock()
	ask, ok := g.pending[permissionID]
	if ok {
		delete(g.pending, permissionID)
	}
	g.mu.Unlock()

	if !ok {
		return types.NewNotFoundError("permission", permissionID)
	}

	ask.replyCh <- response
	g.bus.Publish(event.PermissionReplied, event.PermissionRepliedData{
		SessionID:    ask.sessionID,
		PermissionID: permissionID,
		Response:     response,
	})
	return nil
}

// PendingFor lists pending ask ids for a session.
func (g *Gate) PendingFor(sessionID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []string
	for askID, ask := range g.pending {
		if ask.sessionID == sessionID {
			ids = append(ids, askID)
		}
	}
	return ids
}

func (g *Gate) persistAlways(ctx context.Context, sessionID string, patterns []string) {
	if g.Persist == nil {
		return
	}
	rules := make([]types.PermissionRule, len(patterns))
	for i, p := range patterns {
		rules[i] = types.PermissionRule{Pattern: p, Action: types.ActionAllow}
	}
	if err := g.Persist(ctx, sessionID, rules); err != nil {
		logging.Warn().Str("sessionID", sessionID).Err(err).
			Msg("failed to persist always rules")
	}
}
