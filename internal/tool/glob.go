package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const globDescription = `Finds files matching a glob pattern.

Usage:
- Supports ** for recursive matching (e.g. "src/**/*.go")
- Results are worktree-relative paths sorted by modification time
- Use grep to search file contents instead`

// GlobTool matches file paths.
type GlobTool struct{}

// GlobInput is the glob tool's parameters.
type GlobInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// NewGlobTool creates the glob tool.
func NewGlobTool() *GlobTool { return &GlobTool{} }

func (t *GlobTool) ID() string          { return "glob" }
func (t *GlobTool) Description() string { return globDescription }

func (t *GlobTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match files against"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in (default: worktree root)"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GlobTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GlobInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}

	root := toolCtx.WorkDir
	if params.Path != "" {
		root = toolCtx.ResolvePath(params.Path)
	}

	matches, err := doublestar.Glob(os.DirFS(root), params.Pattern,
		doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	type match struct {
		path    string
		modTime int64
	}
	withTimes := make([]match, 0, len(matches))
	for _, m := range matches {
		if strings.HasPrefix(m, ".git/") {
			continue
		}
		info, err := fs.Stat(os.DirFS(root), m)
		if err != nil {
			continue
		}
		withTimes = append(withTimes, match{path: m, modTime: info.ModTime().UnixMilli()})
	}
	sort.Slice(withTimes, func(i, j int) bool { return withTimes[i].modTime > withTimes[j].modTime })

	var sb strings.Builder
	for _, m := range withTimes {
		sb.WriteString(m.path)
		sb.WriteByte('\n')
	}
	if len(withTimes) == 0 {
		sb.WriteString("No files matched.")
	}

	return &Result{
		Title:  params.Pattern,
		Output: sb.String(),
		Metadata: map[string]any{
			"count": len(withTimes),
		},
	}, nil
}
