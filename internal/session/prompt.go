package session

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/core/internal/provider"
	"github.com/opencode-ai/core/pkg/types"
)

// elidedOutput replaces compacted tool outputs in prompt
// reconstruction. The stored output is untouched; UIs still see it.
const elidedOutput = "[old tool output elided to save context]"

// buildRequest reconstructs the conversation for the model. History
// starts at the most recent summary message when one exists, and
// compacted tool outputs are elided.
func (s *Service) buildRequest(
	ctx context.Context,
	sess *types.Session,
	agent *types.Agent,
	model *types.Model,
	assistant *types.Message,
) (*provider.CompletionRequest, error) {
	messages, err := s.repo.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	// Replay begins at the latest summary.
	start := 0
	for i, m := range messages {
		if m.Role == "assistant" && m.Summary {
			start = i
		}
	}
	messages = messages[start:]

	history := []*schema.Message{{
		Role:    schema.System,
		Content: strings.Join(assistant.System, "\n\n"),
	}}

	for _, m := range messages {
		// The in-flight reply is replayed too: its earlier steps'
		// tool calls and results feed the next step.
		if m.ID != assistant.ID && m.Error != nil && m.Error.Name != types.ErrOutputLength {
			continue // failed turns carry no usable content
		}

		parts, err := s.repo.ListParts(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		history = append(history, convertMessage(m, parts)...)
	}

	req := &provider.CompletionRequest{
		Model:       model.ID,
		Messages:    history,
		MaxTokens:   model.MaxOutput,
		Temperature: agent.Temperature,
		TopP:        agent.TopP,
	}
	if model.SupportsTools {
		req.Tools = s.toolInfos(agent)
	}
	return req, nil
}

// convertMessage flattens one stored message into model wire form:
// the message itself, then one tool-role message per terminal tool
// call.
func convertMessage(m *types.Message, parts []types.Part) []*schema.Message {
	role := schema.User
	if m.Role == "assistant" {
		role = schema.Assistant
	}

	var content strings.Builder
	var toolCalls []schema.ToolCall
	var toolResults []*schema.Message

	for _, part := range parts {
		switch p := part.(type) {
		case *types.TextPart:
			if content.Len() > 0 {
				content.WriteString("\n")
			}
			content.WriteString(p.Text)

		case *types.ToolPart:
			if !p.State.Terminal() {
				continue
			}
			toolCalls = append(toolCalls, schema.ToolCall{
				ID: p.CallID,
				Function: schema.FunctionCall{
					Name:      p.Tool,
					Arguments: p.State.Raw,
				},
			})

			output := p.State.Output
			if p.State.Status == types.ToolStateError {
				output = "Error: " + p.State.Error
			} else if p.State.Time.Compacted != nil {
				output = elidedOutput
			}
			toolResults = append(toolResults, &schema.Message{
				Role:       schema.Tool,
				ToolCallID: p.CallID,
				Content:    output,
			})
		}
	}

	if content.Len() == 0 && len(toolCalls) == 0 {
		return nil
	}

	out := []*schema.Message{{
		Role:      role,
		Content:   content.String(),
		ToolCalls: toolCalls,
	}}
	return append(out, toolResults...)
}

func (s *Service) toolInfos(agent *types.Agent) []*schema.ToolInfo {
	var descriptors []provider.ToolDescriptor
	for _, t := range s.tools.List() {
		if !agent.ToolEnabled(t.ID()) {
			continue
		}
		descriptors = append(descriptors, provider.ToolDescriptor{
			Name:        t.ID(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return provider.ToolInfos(descriptors)
}
