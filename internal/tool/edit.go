package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
)

const editDescription = `Performs an exact string replacement in a file.

Usage:
- The file must have been read in this session before editing
- oldString must match the file contents exactly, including whitespace
- oldString must be unique in the file unless replaceAll is set
- Use replaceAll to change every occurrence`

// EditTool performs exact string replacement.
type EditTool struct{}

// EditInput is the edit tool's parameters.
type EditInput struct {
	FilePath   string `json:"filePath"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty"`
}

// NewEditTool creates the edit tool.
func NewEditTool() *EditTool { return &EditTool{} }

func (t *EditTool) ID() string          { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The path of the file to edit"
			},
			"oldString": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"newString": {
				"type": "string",
				"description": "The replacement text"
			},
			"replaceAll": {
				"type": "boolean",
				"description": "Replace every occurrence (default: false)"
			}
		},
		"required": ["filePath", "oldString", "newString"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params EditInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}
	if params.OldString == params.NewString {
		return nil, fmt.Errorf("oldString and newString must differ")
	}

	path := toolCtx.ResolvePath(params.FilePath)
	if err := toolCtx.AskPermission(ctx, path, []string{"edit:" + path}, map[string]any{
		"path": path,
	}); err != nil {
		return nil, err
	}

	if toolCtx.Files != nil {
		if err := toolCtx.Files.CheckFresh(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	content := string(data)

	count := strings.Count(content, params.OldString)
	switch {
	case count == 0:
		return nil, fmt.Errorf("oldString not found in %s%s", params.FilePath, closestMatchHint(content, params.OldString))
	case count > 1 && !params.ReplaceAll:
		return nil, fmt.Errorf("oldString appears %d times in %s; make it unique or set replaceAll", count, params.FilePath)
	}

	var updated string
	replaced := count
	if params.ReplaceAll {
		updated = strings.ReplaceAll(content, params.OldString, params.NewString)
	} else {
		updated = strings.Replace(content, params.OldString, params.NewString, 1)
		replaced = 1
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if toolCtx.Files != nil {
		toolCtx.Files.MarkWritten(path)
	}

	return &Result{
		Title:  filepath.Base(path),
		Output: fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, path),
		Metadata: map[string]any{
			"path":     path,
			"replaced": replaced,
		},
	}, nil
}

// closestMatchHint points at the nearest line when an exact match
// fails, which usually means a whitespace mismatch.
func closestMatchHint(content, needle string) string {
	firstLine, _, _ := strings.Cut(strings.TrimSpace(needle), "\n")
	if firstLine == "" {
		return ""
	}

	best := ""
	bestDist := len(firstLine)/2 + 1
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if d := levenshtein.ComputeDistance(trimmed, strings.TrimSpace(firstLine)); d < bestDist {
			best, bestDist = trimmed, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("; closest line is %q", best)
}
