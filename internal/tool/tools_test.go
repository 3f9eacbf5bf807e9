package tool

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

func testContext(t *testing.T) *Context {
	t.Helper()
	return &Context{
		SessionID: "ses_1",
		MessageID: "msg_1",
		CallID:    "call_1",
		WorkDir:   t.TempDir(),
		Files:     NewFileTimes(),
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadTool(t *testing.T) {
	toolCtx := testContext(t)
	writeFile(t, toolCtx.WorkDir, "hello.txt", "first\nsecond\nthird\n")

	res, err := NewReadTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": "hello.txt"}`), toolCtx)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "first")
	assert.Contains(t, res.Output, "     2\tsecond")
	assert.Equal(t, "hello.txt", res.Title)
}

func TestReadToolOffsetLimit(t *testing.T) {
	toolCtx := testContext(t)
	writeFile(t, toolCtx.WorkDir, "nums.txt", "a\nb\nc\nd\ne\n")

	res, err := NewReadTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": "nums.txt", "offset": 2, "limit": 2}`), toolCtx)
	require.NoError(t, err)
	assert.NotContains(t, res.Output, "\ta\n")
	assert.Contains(t, res.Output, "b")
	assert.Contains(t, res.Output, "c")
	assert.NotContains(t, res.Output, "d")
}

func TestReadToolBlocksEnvFiles(t *testing.T) {
	toolCtx := testContext(t)
	writeFile(t, toolCtx.WorkDir, ".env", "SECRET=x\n")
	writeFile(t, toolCtx.WorkDir, ".env.example", "SECRET=\n")

	_, err := NewReadTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": ".env"}`), toolCtx)
	require.Error(t, err)

	_, err = NewReadTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": ".env.example"}`), toolCtx)
	assert.NoError(t, err)
}

func TestWriteTool(t *testing.T) {
	toolCtx := testContext(t)

	res, err := NewWriteTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": "sub/dir/new.txt", "content": "created"}`), toolCtx)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Wrote")

	data, err := os.ReadFile(filepath.Join(toolCtx.WorkDir, "sub/dir/new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "created", string(data))
}

func TestEditRequiresPriorRead(t *testing.T) {
	toolCtx := testContext(t)
	writeFile(t, toolCtx.WorkDir, "code.go", "package main\n")

	_, err := NewEditTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": "code.go", "oldString": "main", "newString": "app"}`), toolCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read before editing")

	// After a read, the edit goes through.
	_, err = NewReadTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": "code.go"}`), toolCtx)
	require.NoError(t, err)

	res, err := NewEditTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": "code.go", "oldString": "main", "newString": "app"}`), toolCtx)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Replaced 1")

	data, _ := os.ReadFile(filepath.Join(toolCtx.WorkDir, "code.go"))
	assert.Equal(t, "package app\n", string(data))
}

func TestEditRejectsAmbiguousMatch(t *testing.T) {
	toolCtx := testContext(t)
	writeFile(t, toolCtx.WorkDir, "dup.txt", "x\nx\n")
	toolCtx.Files.MarkRead(filepath.Join(toolCtx.WorkDir, "dup.txt"))

	_, err := NewEditTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": "dup.txt", "oldString": "x", "newString": "y"}`), toolCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replaceAll")

	res, err := NewEditTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": "dup.txt", "oldString": "x", "newString": "y", "replaceAll": true}`), toolCtx)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Replaced 2")
}

func TestEditPermissionDenied(t *testing.T) {
	toolCtx := testContext(t)
	path := writeFile(t, toolCtx.WorkDir, "locked.txt", "content\n")
	toolCtx.Files.MarkRead(path)
	toolCtx.Ask = func(context.Context, string, []string, map[string]any) error {
		return types.NewPermissionDeniedError("permission rejected by user")
	}

	_, err := NewEditTool().Execute(context.Background(),
		json.RawMessage(`{"filePath": "locked.txt", "oldString": "content", "newString": "x"}`), toolCtx)
	assert.ErrorIs(t, err, &types.NamedError{Name: types.ErrPermissionDenied})
}

func TestGlobTool(t *testing.T) {
	toolCtx := testContext(t)
	writeFile(t, toolCtx.WorkDir, "a.go", "package a\n")
	writeFile(t, toolCtx.WorkDir, "sub/b.go", "package b\n")
	writeFile(t, toolCtx.WorkDir, "sub/c.txt", "text\n")

	res, err := NewGlobTool().Execute(context.Background(),
		json.RawMessage(`{"pattern": "**/*.go"}`), toolCtx)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "a.go")
	assert.Contains(t, res.Output, "sub/b.go")
	assert.NotContains(t, res.Output, "c.txt")
}

func TestGrepTool(t *testing.T) {
	toolCtx := testContext(t)
	writeFile(t, toolCtx.WorkDir, "x.go", "func Alpha() {}\nfunc beta() {}\n")
	writeFile(t, toolCtx.WorkDir, "y.txt", "Alpha in text\n")

	res, err := NewGrepTool().Execute(context.Background(),
		json.RawMessage(`{"pattern": "Alpha", "glob": "**/*.go"}`), toolCtx)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "x.go:1:")
	assert.NotContains(t, res.Output, "y.txt")
}

func TestListTool(t *testing.T) {
	toolCtx := testContext(t)
	writeFile(t, toolCtx.WorkDir, "visible.txt", "")
	writeFile(t, toolCtx.WorkDir, ".hidden", "")
	require.NoError(t, os.Mkdir(filepath.Join(toolCtx.WorkDir, "dir"), 0o755))

	res, err := NewListTool().Execute(context.Background(), json.RawMessage(`{}`), toolCtx)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "visible.txt")
	assert.Contains(t, res.Output, "dir/")
	assert.NotContains(t, res.Output, ".hidden")
}

type memTodoStore struct {
	todos map[string][]types.Todo
}

func (m *memTodoStore) SetTodos(_ context.Context, sessionID string, todos []types.Todo) error {
	m.todos[sessionID] = todos
	return nil
}

func (m *memTodoStore) GetTodos(_ context.Context, sessionID string) ([]types.Todo, error) {
	return m.todos[sessionID], nil
}

func TestTodoTools(t *testing.T) {
	toolCtx := testContext(t)
	store := &memTodoStore{todos: make(map[string][]types.Todo)}

	registry := DefaultRegistry()
	registry.SetTodoStore(store)

	write, _ := registry.Get("todowrite")
	res, err := write.Execute(context.Background(),
		json.RawMessage(`{"todos": [{"id":"1","content":"ship it","status":"in_progress"}]}`), toolCtx)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "ship it")

	read, _ := registry.Get("todoread")
	res, err = read.Execute(context.Background(), json.RawMessage(`{}`), toolCtx)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "[>] ship it")

	_, err = write.Execute(context.Background(),
		json.RawMessage(`{"todos": [{"id":"1","content":"x","status":"bogus"}]}`), toolCtx)
	assert.Error(t, err)
}

func TestRegistryDefaults(t *testing.T) {
	registry := DefaultRegistry()
	ids := registry.IDs()
	for _, want := range []string{"read", "write", "edit", "bash", "glob", "grep", "ls", "webfetch", "todowrite", "todoread", "batch"} {
		assert.Contains(t, ids, want)
	}
}
