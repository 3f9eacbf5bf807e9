package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/opencode-ai/core/internal/permission"
)

const bashDescription = `Executes a shell command in the worktree.

Usage:
- Provide a one-line description of what the command does
- Commands run with the worktree as working directory
- Output is captured from both stdout and stderr
- An optional timeout in milliseconds caps execution (default 2 minutes)`

const defaultBashTimeout = 2 * time.Minute

// BashTool runs shell commands.
type BashTool struct{}

// BashInput is the bash tool's parameters.
type BashInput struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Timeout     int    `json:"timeout,omitempty"`
}

// NewBashTool creates the bash tool.
func NewBashTool() *BashTool { return &BashTool{} }

func (t *BashTool) ID() string          { return "bash" }
func (t *BashTool) Description() string { return bashDescription }

func (t *BashTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The shell command to execute"
			},
			"description": {
				"type": "string",
				"description": "One-line description of what the command does"
			},
			"timeout": {
				"type": "integer",
				"description": "Timeout in milliseconds"
			}
		},
		"required": ["command"]
	}`)
}

func (t *BashTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params BashInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Command) == "" {
		return nil, fmt.Errorf("command must not be empty")
	}

	// Every parsed invocation must pass the gate; the suggested
	// "always" patterns generalise over arguments.
	for _, key := range permission.BashKeys(params.Command) {
		if err := toolCtx.AskPermission(ctx, key, permission.BashPatterns(params.Command), map[string]any{
			"command":     params.Command,
			"description": params.Description,
		}); err != nil {
			return nil, err
		}
	}

	timeout := defaultBashTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", params.Command)
	cmd.Dir = toolCtx.WorkDir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	output := buf.String()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command timed out after %s", timeout)
		} else {
			return nil, fmt.Errorf("failed to run command: %w", err)
		}
	}

	title := params.Description
	if title == "" {
		title = params.Command
	}

	if exitCode != 0 {
		output = fmt.Sprintf("%s\n(exit code %d)", output, exitCode)
	}

	return &Result{
		Title:  title,
		Output: output,
		Metadata: map[string]any{
			"command":  params.Command,
			"exitCode": exitCode,
			"duration": elapsed.Milliseconds(),
		},
	}, nil
}
