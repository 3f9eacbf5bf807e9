// Package tool provides the tool framework: the shared tool contract,
// the registry, output truncation with spill-to-disk, and the built-in
// tool set.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
)

// Tool is the contract every tool implements. The engine treats the
// set as opaque: it resolves tools by name, enforces permissions
// through the context's Ask, and truncates outputs before they reach
// the model.
type Tool interface {
	// ID returns the tool identifier.
	ID() string

	// Description returns the tool description shown to the model.
	Description() string

	// Parameters returns the JSON Schema for tool parameters.
	Parameters() json.RawMessage

	// Execute runs the tool. Cancellation arrives through ctx.
	Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
}

// AskFunc requests permission for a tool-defined key. It returns nil
// when allowed and a PermissionDenied error otherwise; interactive
// asks block until resolved.
type AskFunc func(ctx context.Context, key string, patterns []string, metadata map[string]any) error

// Context provides execution context to tools.
type Context struct {
	SessionID string
	MessageID string
	CallID    string
	Agent     string
	WorkDir   string

	// Ask is the permission gate for this call. Nil means allow.
	Ask AskFunc

	// Files tracks read/write times so edits require a prior read.
	Files *FileTimes

	// OnMetadata streams live title/metadata updates to the UI.
	OnMetadata func(title string, meta map[string]any)
}

// AskPermission requests permission, tolerating an unwired gate.
func (c *Context) AskPermission(ctx context.Context, key string, patterns []string, metadata map[string]any) error {
	if c.Ask == nil {
		return nil
	}
	return c.Ask(ctx, key, patterns, metadata)
}

// SetMetadata publishes live execution metadata.
func (c *Context) SetMetadata(title string, meta map[string]any) {
	if c.OnMetadata != nil {
		c.OnMetadata(title, meta)
	}
}

// ResolvePath makes a path absolute relative to the worktree.
func (c *Context) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.WorkDir, path)
}

// Result is the output of a tool execution.
type Result struct {
	Title       string         `json:"title"`
	Output      string         `json:"output"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

// Attachment is a file produced by a tool.
type Attachment struct {
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

func unmarshalInput(input json.RawMessage, v any) error {
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
