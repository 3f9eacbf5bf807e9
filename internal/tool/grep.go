package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const grepDescription = `Searches file contents with a regular expression.

Usage:
- The pattern uses Go regular expression syntax
- An optional glob restricts which files are searched
- Returns matching lines as path:line:text`

const grepMaxMatches = 500

// GrepTool searches file contents.
type GrepTool struct{}

// GrepInput is the grep tool's parameters.
type GrepInput struct {
	Pattern string `json:"pattern"`
	Glob    string `json:"glob,omitempty"`
	Path    string `json:"path,omitempty"`
}

// NewGrepTool creates the grep tool.
func NewGrepTool() *GrepTool { return &GrepTool{} }

func (t *GrepTool) ID() string          { return "grep" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regular expression to search for"
			},
			"glob": {
				"type": "string",
				"description": "Glob restricting which files are searched"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in (default: worktree root)"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GrepInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	root := toolCtx.WorkDir
	if params.Path != "" {
		root = toolCtx.ResolvePath(params.Path)
	}

	var sb strings.Builder
	matches := 0
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if matches >= grepMaxMatches {
			return filepath.SkipAll
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if params.Glob != "" {
			if ok, _ := doublestar.Match(params.Glob, rel); !ok {
				return nil
			}
		}

		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if re.MatchString(line) {
				fmt.Fprintf(&sb, "%s:%d:%s\n", rel, lineNum, line)
				matches++
				if matches >= grepMaxMatches {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if matches == 0 {
		sb.WriteString("No matches found.")
	}

	return &Result{
		Title:  params.Pattern,
		Output: sb.String(),
		Metadata: map[string]any{
			"matches": matches,
		},
	}, nil
}
