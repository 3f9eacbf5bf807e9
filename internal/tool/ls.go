package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

const listDescription = `Lists the entries of a directory.

Usage:
- Directories are suffixed with /
- Hidden entries are skipped unless showHidden is set`

// ListTool lists directory entries.
type ListTool struct{}

// ListInput is the list tool's parameters.
type ListInput struct {
	Path       string `json:"path,omitempty"`
	ShowHidden bool   `json:"showHidden,omitempty"`
}

// NewListTool creates the list tool.
func NewListTool() *ListTool { return &ListTool{} }

func (t *ListTool) ID() string          { return "ls" }
func (t *ListTool) Description() string { return listDescription }

func (t *ListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The directory to list (default: worktree root)"
			},
			"showHidden": {
				"type": "boolean",
				"description": "Include hidden entries"
			}
		}
	}`)
}

func (t *ListTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ListInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}

	dir := toolCtx.WorkDir
	if params.Path != "" {
		dir = toolCtx.ResolvePath(params.Path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !params.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	output := strings.Join(names, "\n")
	if output == "" {
		output = "Directory is empty."
	}

	return &Result{
		Title:  dir,
		Output: output,
		Metadata: map[string]any{
			"count": len(names),
		},
	}, nil
}
