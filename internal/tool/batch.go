package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const batchDescription = `Executes multiple independent tool calls concurrently to reduce latency. Best used for gathering context (reads, searches, listings).

Payload format (JSON array):
[{"tool": "read", "parameters": {"filePath": "src/main.go"}},{"tool": "grep", "parameters": {"pattern": "Service", "glob": "**/*.go"}}]

Rules:
- 1-10 tool calls per batch
- All calls start in parallel; ordering is NOT guaranteed
- Partial failures do not stop the others

Disallowed inside a batch: batch (no nesting), edit (run edits separately), todoread (call it directly).`

// Batch size bounds.
const (
	batchMinCalls = 1
	batchMaxCalls = 10
)

// batchDisallowed lists tools that may not run inside a batch.
var batchDisallowed = map[string]bool{
	"batch":    true,
	"edit":     true,
	"todoread": true,
}

// BatchTool fans tool calls out through the registry.
type BatchTool struct {
	registry *Registry
}

// BatchInput is the batch tool's parameters.
type BatchInput struct {
	ToolCalls []BatchCall `json:"tool_calls"`
}

// BatchCall is one call inside a batch.
type BatchCall struct {
	Tool       string          `json:"tool"`
	Parameters json.RawMessage `json:"parameters"`
}

// NewBatchTool creates the batch tool over a registry.
func NewBatchTool(registry *Registry) *BatchTool {
	return &BatchTool{registry: registry}
}

func (t *BatchTool) ID() string          { return "batch" }
func (t *BatchTool) Description() string { return batchDescription }

func (t *BatchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"tool_calls": {
				"type": "array",
				"description": "Array of tool calls to execute in parallel",
				"items": {
					"type": "object",
					"properties": {
						"tool": {
							"type": "string",
							"description": "The name of the tool to execute"
						},
						"parameters": {
							"type": "object",
							"description": "Parameters for the tool"
						}
					},
					"required": ["tool", "parameters"]
				}
			}
		},
		"required": ["tool_calls"]
	}`)
}

type batchResult struct {
	index  int
	tool   string
	result *Result
	err    error
	took   time.Duration
}

func (t *BatchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params BatchInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}

	if len(params.ToolCalls) < batchMinCalls || len(params.ToolCalls) > batchMaxCalls {
		return nil, fmt.Errorf("tool_calls must contain between %d and %d calls, got %d",
			batchMinCalls, batchMaxCalls, len(params.ToolCalls))
	}

	results := make([]batchResult, len(params.ToolCalls))
	g, groupCtx := errgroup.WithContext(ctx)

	for i, call := range params.ToolCalls {
		i, call := i, call
		g.Go(func() error {
			start := time.Now()
			res := batchResult{index: i, tool: call.Tool}

			switch {
			case batchDisallowed[call.Tool]:
				res.err = fmt.Errorf("tool %q is not allowed inside a batch", call.Tool)
			default:
				impl, ok := t.registry.Get(call.Tool)
				if !ok {
					res.err = fmt.Errorf("tool not found: %s", call.Tool)
				} else {
					res.result, res.err = impl.Execute(groupCtx, call.Parameters, toolCtx)
				}
			}

			res.took = time.Since(start)
			results[i] = res
			return nil // failures stay local to their slot
		})
	}
	g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	succeeded := 0
	var sb strings.Builder
	for _, res := range results {
		if res.err != nil {
			fmt.Fprintf(&sb, "### %d. %s (error)\n%s\n\n", res.index+1, res.tool, res.err)
			continue
		}
		succeeded++
		fmt.Fprintf(&sb, "### %d. %s — %s\n%s\n\n", res.index+1, res.tool, res.result.Title, res.result.Output)
	}

	return &Result{
		Title:  fmt.Sprintf("%d/%d successful", succeeded, len(results)),
		Output: strings.TrimRight(sb.String(), "\n"),
		Metadata: map[string]any{
			"total":     len(results),
			"succeeded": succeeded,
		},
	}, nil
}
