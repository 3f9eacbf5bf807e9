package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const readDescription = `Reads a file from the local filesystem.

Usage:
- The filePath parameter accepts absolute or worktree-relative paths
- By default, reads up to 2000 lines from the beginning
- You can optionally specify offset and limit for pagination
- Returns file contents with line numbers`

// ReadTool reads files.
type ReadTool struct{}

// ReadInput is the read tool's parameters.
type ReadInput struct {
	FilePath string `json:"filePath"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// NewReadTool creates the read tool.
func NewReadTool() *ReadTool { return &ReadTool{} }

func (t *ReadTool) ID() string          { return "read" }
func (t *ReadTool) Description() string { return readDescription }

func (t *ReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The path to the file to read"
			},
			"offset": {
				"type": "integer",
				"description": "Line number to start reading from"
			},
			"limit": {
				"type": "integer",
				"description": "Number of lines to read (default: 2000)"
			}
		},
		"required": ["filePath"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ReadInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = MaxLines
	}

	path := toolCtx.ResolvePath(params.FilePath)
	if shouldBlockEnvFile(path) {
		return nil, fmt.Errorf("reading %s is blocked; do not attempt to read it again", params.FilePath)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", params.FilePath)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", params.FilePath)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	lineNum := 0
	emitted := 0
	for scanner.Scan() {
		lineNum++
		if params.Offset > 0 && lineNum < params.Offset {
			continue
		}
		if emitted >= params.Limit {
			break
		}
		fmt.Fprintf(&sb, "%6d\t%s\n", lineNum, scanner.Text())
		emitted++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if toolCtx.Files != nil {
		toolCtx.Files.MarkRead(path)
	}

	return &Result{
		Title:  filepath.Base(path),
		Output: sb.String(),
		Metadata: map[string]any{
			"path":  path,
			"lines": emitted,
		},
	}, nil
}

// shouldBlockEnvFile blocks dotenv-style secret files while letting
// samples and examples through.
func shouldBlockEnvFile(path string) bool {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, ".env") {
		return false
	}
	for _, suffix := range []string{".sample", ".example", ".template"} {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	return true
}
