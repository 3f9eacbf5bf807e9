package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencode-ai/core/pkg/types"
)

// TodoStore is the narrow repository surface the todo tools need.
type TodoStore interface {
	SetTodos(ctx context.Context, sessionID string, todos []types.Todo) error
	GetTodos(ctx context.Context, sessionID string) ([]types.Todo, error)
}

const todoWriteDescription = `Replaces the session's todo list.

Usage:
- The list replaces the previous one wholesale
- Valid statuses: pending, in_progress, completed, cancelled
- Keep at most one item in_progress`

// TodoWriteTool replaces the session todo list.
type TodoWriteTool struct {
	store TodoStore
}

// TodoWriteInput is the todowrite tool's parameters.
type TodoWriteInput struct {
	Todos []types.Todo `json:"todos"`
}

// NewTodoWriteTool creates the todowrite tool. The store is wired at
// process init.
func NewTodoWriteTool() *TodoWriteTool { return &TodoWriteTool{} }

// SetStore injects the todo store.
func (t *TodoWriteTool) SetStore(store TodoStore) { t.store = store }

func (t *TodoWriteTool) ID() string          { return "todowrite" }
func (t *TodoWriteTool) Description() string { return todoWriteDescription }

func (t *TodoWriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"description": "The full todo list",
				"items": {
					"type": "object",
					"properties": {
						"id": {"type": "string", "description": "Stable todo identifier"},
						"content": {"type": "string", "description": "What needs to be done"},
						"status": {"type": "string", "description": "pending, in_progress, completed or cancelled"},
						"priority": {"type": "string", "description": "Optional priority"}
					},
					"required": ["id", "content", "status"]
				}
			}
		},
		"required": ["todos"]
	}`)
}

var validTodoStatus = map[string]bool{
	"pending": true, "in_progress": true, "completed": true, "cancelled": true,
}

func (t *TodoWriteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	if t.store == nil {
		return nil, fmt.Errorf("todo store not configured")
	}

	var params TodoWriteInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}
	for _, todo := range params.Todos {
		if !validTodoStatus[todo.Status] {
			return nil, fmt.Errorf("invalid todo status %q", todo.Status)
		}
	}

	if err := t.store.SetTodos(ctx, toolCtx.SessionID, params.Todos); err != nil {
		return nil, err
	}

	done := 0
	for _, todo := range params.Todos {
		if todo.Status == "completed" {
			done++
		}
	}

	return &Result{
		Title:  fmt.Sprintf("%d/%d done", done, len(params.Todos)),
		Output: renderTodos(params.Todos),
		Metadata: map[string]any{
			"count": len(params.Todos),
		},
	}, nil
}

const todoReadDescription = `Reads the session's todo list.`

// TodoReadTool returns the session todo list.
type TodoReadTool struct {
	store TodoStore
}

// NewTodoReadTool creates the todoread tool.
func NewTodoReadTool() *TodoReadTool { return &TodoReadTool{} }

// SetStore injects the todo store.
func (t *TodoReadTool) SetStore(store TodoStore) { t.store = store }

func (t *TodoReadTool) ID() string          { return "todoread" }
func (t *TodoReadTool) Description() string { return todoReadDescription }

func (t *TodoReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *TodoReadTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	if t.store == nil {
		return nil, fmt.Errorf("todo store not configured")
	}

	todos, err := t.store.GetTodos(ctx, toolCtx.SessionID)
	if err != nil {
		return nil, err
	}

	return &Result{
		Title:  fmt.Sprintf("%d todos", len(todos)),
		Output: renderTodos(todos),
	}, nil
}

func renderTodos(todos []types.Todo) string {
	if len(todos) == 0 {
		return "Todo list is empty."
	}

	var sb strings.Builder
	for _, todo := range todos {
		mark := " "
		switch todo.Status {
		case "completed":
			mark = "x"
		case "in_progress":
			mark = ">"
		case "cancelled":
			mark = "-"
		}
		fmt.Fprintf(&sb, "[%s] %s\n", mark, todo.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
