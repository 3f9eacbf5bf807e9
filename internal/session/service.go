// Package session implements the prompt/turn engine: it drives one
// LLM turn from user input to assistant completion, with tool
// dispatch, permission gating, retries, cancellation, and automatic
// context-window management.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/hook"
	"github.com/opencode-ai/core/internal/id"
	"github.com/opencode-ai/core/internal/lock"
	"github.com/opencode-ai/core/internal/permission"
	"github.com/opencode-ai/core/internal/provider"
	"github.com/opencode-ai/core/internal/repo"
	"github.com/opencode-ai/core/internal/tool"
	"github.com/opencode-ai/core/pkg/types"
)

// Service owns turn execution for all sessions.
type Service struct {
	repo      *repo.Repository
	bus       *event.Bus
	locks     *lock.Manager
	gate      *permission.Gate
	hooks     *hook.Dispatcher
	tools     *tool.Registry
	providers *provider.Registry
	truncator *tool.Truncator

	agents  map[string]types.Agent
	tracker ChangeTracker

	filesMu sync.Mutex
	files   map[string]*tool.FileTimes

	// DisableCompaction turns automatic compaction off; overflowing
	// turns then fail pre-flight with OverflowError.
	DisableCompaction bool
}

// Config wires a Service.
type Config struct {
	Repo      *repo.Repository
	Locks     *lock.Manager
	Gate      *permission.Gate
	Hooks     *hook.Dispatcher
	Tools     *tool.Registry
	Providers *provider.Registry
	Truncator *tool.Truncator
	Agents    map[string]types.Agent
	Tracker   ChangeTracker
}

// ChangeTracker snapshots a worktree at turn start and folds the
// resulting diffs into the session at turn end.
type ChangeTracker interface {
	Snapshot(dir string) error
	Flush(ctx context.Context, sessionID, dir string) error
}

// NewService creates the turn engine.
func NewService(cfg Config) *Service {
	agents := cfg.Agents
	if agents == nil {
		agents = DefaultAgents()
	}
	return &Service{
		repo:      cfg.Repo,
		bus:       cfg.Repo.Bus(),
		locks:     cfg.Locks,
		gate:      cfg.Gate,
		hooks:     cfg.Hooks,
		tools:     cfg.Tools,
		providers: cfg.Providers,
		truncator: cfg.Truncator,
		agents:    agents,
		tracker:   cfg.Tracker,
		files:     make(map[string]*tool.FileTimes),
	}
}

// fileTimes returns the session's read-before-edit tracker.
func (s *Service) fileTimes(sessionID string) *tool.FileTimes {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	ft, ok := s.files[sessionID]
	if !ok {
		ft = tool.NewFileTimes()
		s.files[sessionID] = ft
	}
	return ft
}

// Repo exposes the repository for API handlers.
func (s *Service) Repo() *repo.Repository { return s.repo }

// Gate exposes the permission gate for API handlers.
func (s *Service) Gate() *permission.Gate { return s.gate }

// Locks exposes the lock manager.
func (s *Service) Locks() *lock.Manager { return s.locks }

// Abort requests cancellation of the session's in-flight turn.
func (s *Service) Abort(sessionID string) bool {
	return s.locks.Cancel(sessionID)
}

// Working reports whether a turn is live on the session.
func (s *Service) Working(sessionID string) bool {
	return s.locks.Locked(sessionID)
}

// Agent resolves a named agent, falling back to the build agent.
func (s *Service) Agent(name string) types.Agent {
	if a, ok := s.agents[name]; ok {
		return a
	}
	return s.agents["build"]
}

// DefaultAgents returns the built-in agent set.
func DefaultAgents() map[string]types.Agent {
	return map[string]types.Agent{
		"build": {
			Name: "build",
		},
		"plan": {
			Name: "plan",
			Tools: map[string]bool{
				"read": true, "glob": true, "grep": true, "ls": true,
				"webfetch": true, "todoread": true, "todowrite": true, "batch": true,
			},
			Permissions: []types.PermissionRule{
				{Pattern: "edit", Action: types.ActionDeny},
				{Pattern: "write", Action: types.ActionDeny},
				{Pattern: "bash", Action: types.ActionDeny},
			},
		},
	}
}

func nowMilli() int64 { return time.Now().UnixMilli() }

func newPartBase(sessionID, messageID string) types.PartBase {
	return types.PartBase{
		ID:        id.Ascending(id.Part),
		MessageID: messageID,
		SessionID: sessionID,
	}
}

// effectiveRules merges session, agent and project rulesets in
// precedence order. The session is re-read so an "always" reply
// earlier in the same turn takes effect on the next tool call.
func (s *Service) effectiveRules(ctx context.Context, sess *types.Session, agent *types.Agent) []types.PermissionRule {
	sessionRules := sess.Permissions
	if live, err := s.repo.GetSession(ctx, sess.ID); err == nil {
		sessionRules = live.Permissions
	}
	project, err := s.repo.GetProjectPermissions(ctx, sess.ProjectID)
	if err != nil {
		project = nil
	}
	return permission.Merge(sessionRules, agent.Permissions, project)
}
