package session

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/core/internal/db"
	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/hook"
	"github.com/opencode-ai/core/internal/lock"
	"github.com/opencode-ai/core/internal/permission"
	"github.com/opencode-ai/core/internal/provider"
	"github.com/opencode-ai/core/internal/repo"
	"github.com/opencode-ai/core/internal/tool"
	"github.com/opencode-ai/core/pkg/types"
)

// fakeStream feeds scripted chunks with an optional delay, observing
// the request context like a real transport.
type fakeStream struct {
	ctx    context.Context
	chunks []*schema.Message
	delay  time.Duration
	pos    int
}

func (s *fakeStream) Recv() (*schema.Message, error) {
	if s.delay > 0 {
		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-time.After(s.delay):
		}
	} else if s.ctx.Err() != nil {
		return nil, s.ctx.Err()
	}

	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	msg := s.chunks[s.pos]
	s.pos++
	return msg, nil
}

func (s *fakeStream) Close() {}

// fakeResponse scripts one CreateCompletion call.
type fakeResponse struct {
	chunks []*schema.Message
	delay  time.Duration
	err    error // returned by CreateCompletion itself
}

// fakeProvider pops scripted responses in order.
type fakeProvider struct {
	mu        sync.Mutex
	id        string
	models    []types.Model
	responses []fakeResponse
	calls     int
}

func (f *fakeProvider) ID() string            { return f.id }
func (f *fakeProvider) Name() string          { return f.id }
func (f *fakeProvider) Models() []types.Model { return f.models }

func (f *fakeProvider) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (provider.CompletionStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if len(f.responses) == 0 {
		return &fakeStream{ctx: ctx}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	if resp.err != nil {
		return nil, resp.err
	}
	return &fakeStream{ctx: ctx, chunks: resp.chunks, delay: resp.delay}, nil
}

func (f *fakeProvider) script(responses ...fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
}

// textResponse scripts a plain text reply.
func textResponse(text string) fakeResponse {
	return fakeResponse{chunks: []*schema.Message{
		{Content: text},
		{ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
		}},
	}}
}

// toolResponse scripts a reply that calls one tool.
func toolResponse(callID, toolName, args string, usage *schema.TokenUsage) fakeResponse {
	if usage == nil {
		usage = &schema.TokenUsage{PromptTokens: 20, CompletionTokens: 10}
	}
	return fakeResponse{chunks: []*schema.Message{
		{ToolCalls: []schema.ToolCall{{
			ID:       callID,
			Function: schema.FunctionCall{Name: toolName, Arguments: args},
		}}},
		{ResponseMeta: &schema.ResponseMeta{FinishReason: "tool_calls", Usage: usage}},
	}}
}

type testEnv struct {
	service  *Service
	bus      *event.Bus
	gate     *permission.Gate
	provider *fakeProvider
	repo     *repo.Repository
	session  *types.Session
	workDir  string
	dataDir  string
}

func (e *testEnv) spillDir() string {
	return filepath.Join(e.dataDir, "tool-output")
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dataDir := t.TempDir()
	workDir := t.TempDir()

	database, err := db.Connect(context.Background(), dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	r := repo.New(database, bus)
	require.NoError(t, r.UpsertProject(context.Background(), &types.Project{
		ID: "prj_test", Worktree: workDir,
	}))
	sess, err := r.CreateSession(context.Background(), "prj_test", workDir, "test", nil)
	require.NoError(t, err)

	gate := permission.NewGate(bus)
	gate.Persist = func(ctx context.Context, sessionID string, rules []types.PermissionRule) error {
		_, err := r.UpdateSession(ctx, sessionID, func(s *types.Session) {
			s.Permissions = append(rules, s.Permissions...)
		})
		return err
	}

	fake := &fakeProvider{id: "fake", models: []types.Model{{
		ID:            "model-a",
		Name:          "Fake Model",
		ProviderID:    "fake",
		ContextWindow: 100_000,
		MaxOutput:     8192,
		SupportsTools: true,
		CostPer1MIn:   1, CostPer1MOut: 2,
	}}}
	providers := provider.NewRegistry("fake/model-a")
	providers.Register(fake)

	tools := tool.DefaultRegistry()
	tools.SetTodoStore(r)

	service := NewService(Config{
		Repo:      r,
		Locks:     lock.NewManager(),
		Gate:      gate,
		Hooks:     hook.NewDispatcher(),
		Tools:     tools,
		Providers: providers,
		Truncator: tool.NewTruncator(dataDir + "/tool-output"),
	})

	return &testEnv{
		service:  service,
		bus:      bus,
		gate:     gate,
		provider: fake,
		repo:     r,
		session:  sess,
		workDir:  workDir,
		dataDir:  dataDir,
	}
}

// collectEvents records bus events for later assertions.
func (e *testEnv) collectEvents() func() []event.Event {
	var mu sync.Mutex
	var events []event.Event
	e.bus.SubscribeAll(func(ev event.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	return func() []event.Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]event.Event, len(events))
		copy(out, events)
		return out
	}
}

func countEvents(events []event.Event, t event.Type) int {
	n := 0
	for _, e := range events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (e *testEnv) prompt(t *testing.T, text string) *types.Message {
	t.Helper()
	msg, err := e.service.Prompt(context.Background(), PromptInput{
		SessionID: e.session.ID,
		Parts:     []UserPart{{Type: "text", Text: text}},
	})
	require.NoError(t, err)
	return msg
}
