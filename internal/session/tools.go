package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencode-ai/core/internal/hook"
	"github.com/opencode-ai/core/internal/permission"
	"github.com/opencode-ai/core/internal/provider"
	"github.com/opencode-ai/core/internal/tool"
	"github.com/opencode-ai/core/pkg/types"
)

// runTool executes one tool call end to end: pending part, validate
// hook, permission gate, execution, truncation, transform hook, and
// the terminal state transition. Failures land on the part; the turn
// continues.
func (s *Service) runTool(
	ctx context.Context,
	sess *types.Session,
	agent *types.Agent,
	assistant *types.Message,
	call provider.ToolCall,
) error {
	var input map[string]any
	_ = json.Unmarshal(call.Input, &input)

	part := &types.ToolPart{
		PartBase: newPartBase(sess.ID, assistant.ID),
		CallID:   call.ID,
		Tool:     call.Name,
		State: types.ToolState{
			Status: types.ToolStatePending,
			Input:  input,
			Raw:    string(call.Input),
			Time:   types.ToolStateTime{Start: nowMilli()},
		},
	}
	if err := s.repo.SavePart(ctx, part, ""); err != nil {
		return err
	}

	fail := func(kind, message string) error {
		end := nowMilli()
		part.State.Status = types.ToolStateError
		part.State.Error = message
		part.State.Time.End = &end
		s.repo.SavePart(context.Background(), part, "")
		return types.NewNamedError(kind, message)
	}

	impl, ok := s.tools.Get(call.Name)
	if !ok || !agent.ToolEnabled(call.Name) {
		return fail(types.ErrUnknown, "tool not available: "+call.Name)
	}

	// Pre-tool validate hooks may rewrite args or block the call.
	args, blocked, reason := s.hooks.ValidateTool(ctx, hook.ToolValidateInput{
		Tool:      call.Name,
		SessionID: sess.ID,
		CallID:    call.ID,
		Args:      input,
	})
	if blocked {
		return fail(types.ErrToolBlocked, reason)
	}
	if args != nil {
		part.State.Input = args
		input = args
	}
	rawInput, err := json.Marshal(input)
	if err != nil {
		rawInput = call.Input
	}

	rules := s.effectiveRules(ctx, sess, agent)

	// Repeated identical calls escalate to a permission ask.
	if repeats, err := s.countIdenticalCalls(ctx, assistant.ID, call.Name, part.State.Raw); err == nil && repeats >= doomLoopThreshold {
		askErr := s.gate.Ask(ctx, permission.AskRequest{
			SessionID: sess.ID,
			MessageID: assistant.ID,
			CallID:    call.ID,
			Tool:      "doom_loop",
			Key:       call.Name,
			Patterns:  []string{"doom_loop:" + call.Name},
			Metadata:  map[string]any{"tool": call.Name, "repeats": repeats},
			Rules:     rules,
		})
		if askErr != nil {
			return fail(types.ErrPermissionDenied,
				fmt.Sprintf("%s called %d times with identical input", call.Name, repeats))
		}
	}

	toolCtx := &tool.Context{
		SessionID: sess.ID,
		MessageID: assistant.ID,
		CallID:    call.ID,
		Agent:     agent.Name,
		WorkDir:   sess.Directory,
		Files:     s.fileTimes(sess.ID),
		Ask: func(askCtx context.Context, key string, patterns []string, metadata map[string]any) error {
			return s.gate.Ask(askCtx, permission.AskRequest{
				SessionID: sess.ID,
				MessageID: assistant.ID,
				CallID:    call.ID,
				Tool:      call.Name,
				Key:       key,
				Patterns:  patterns,
				Metadata:  metadata,
				Rules:     rules,
			})
		},
		OnMetadata: func(title string, meta map[string]any) {
			part.State.Title = title
			if part.State.Metadata == nil {
				part.State.Metadata = make(map[string]any)
			}
			for k, v := range meta {
				part.State.Metadata[k] = v
			}
			s.repo.SavePart(ctx, part, "")
		},
	}

	result, err := impl.Execute(ctx, rawInput, toolCtx)
	if err != nil {
		if ctx.Err() != nil {
			return fail(types.ErrAborted, types.ErrAborted)
		}
		named := types.AsNamedError(err)
		return fail(named.Name, named.Data.Message)
	}

	truncated, err := s.truncator.Truncate(result.Output, tool.DirectionHead)
	if err != nil {
		return fail(types.ErrUnknown, err.Error())
	}

	hookResult := &hook.ToolResult{
		Title:    result.Title,
		Output:   truncated.Content,
		Metadata: result.Metadata,
	}
	s.hooks.TransformToolResult(ctx, hook.ToolResultInput{
		Tool:      call.Name,
		SessionID: sess.ID,
		CallID:    call.ID,
	}, hookResult)

	end := nowMilli()
	part.State.Status = types.ToolStateCompleted
	part.State.Output = hookResult.Output
	part.State.Title = hookResult.Title
	part.State.Metadata = hookResult.Metadata
	part.State.Time.End = &end
	if truncated.Truncated {
		if part.State.Metadata == nil {
			part.State.Metadata = make(map[string]any)
		}
		part.State.Metadata["truncated"] = true
		part.State.Metadata["outputID"] = truncated.OutputID
	}
	for _, att := range result.Attachments {
		part.State.Attachments = append(part.State.Attachments, types.FilePart{
			PartBase: newPartBase(sess.ID, assistant.ID),
			Mime:     att.MediaType,
			URL:      att.URL,
			Filename: att.Filename,
		})
	}

	return s.repo.SavePart(ctx, part, "")
}

// doomLoopThreshold is how many identical completed calls trigger an
// escalation.
const doomLoopThreshold = 3

func (s *Service) countIdenticalCalls(ctx context.Context, messageID, toolName, raw string) (int, error) {
	parts, err := s.repo.ListParts(ctx, messageID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range parts {
		tp, ok := p.(*types.ToolPart)
		if !ok || tp.Tool != toolName || !tp.State.Terminal() {
			continue
		}
		if tp.State.Raw == raw {
			count++
		}
	}
	return count, nil
}
