package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const writeDescription = `Writes content to a file, creating it if needed.

Usage:
- Overwrites the existing file contents entirely
- Parent directories are created automatically
- Prefer the edit tool for partial changes to existing files`

// WriteTool creates or overwrites files.
type WriteTool struct{}

// WriteInput is the write tool's parameters.
type WriteInput struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// NewWriteTool creates the write tool.
func NewWriteTool() *WriteTool { return &WriteTool{} }

func (t *WriteTool) ID() string          { return "write" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The path of the file to write"
			},
			"content": {
				"type": "string",
				"description": "The full content to write"
			}
		},
		"required": ["filePath", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WriteInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}

	path := toolCtx.ResolvePath(params.FilePath)
	if err := toolCtx.AskPermission(ctx, path, []string{"write:" + path}, map[string]any{
		"path": path,
	}); err != nil {
		return nil, err
	}

	// Overwriting an existing file requires a fresh read, like edit.
	if _, statErr := os.Stat(path); statErr == nil && toolCtx.Files != nil {
		if err := toolCtx.Files.CheckFresh(path); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(params.Content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if toolCtx.Files != nil {
		toolCtx.Files.MarkWritten(path)
	}

	return &Result{
		Title:  filepath.Base(path),
		Output: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), path),
		Metadata: map[string]any{
			"path":  path,
			"bytes": len(params.Content),
		},
	}, nil
}
