package session

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/id"
	"github.com/opencode-ai/core/internal/logging"
	"github.com/opencode-ai/core/internal/provider"
	"github.com/opencode-ai/core/pkg/types"
)

const (
	// PruneProtect is the token estimate of recent tool output kept
	// untouched by pruning.
	PruneProtect = 40_000
	// PruneMinimum is the least prunable volume worth marking.
	PruneMinimum = 20_000
	// ProtectedUserTurns are never pruned.
	ProtectedUserTurns = 2

	// compactReserve caps the output headroom subtracted from the
	// context window when testing for overflow.
	compactReserve = 32_000

	// summaryMaxTokens bounds the generated summary.
	summaryMaxTokens = 2000
)

const summaryPrompt = `Summarize this conversation. The summary will be the only context available when the conversation continues, so preserve everything needed to keep working: what was asked, what was done, files involved, decisions made, and open next steps. Be concise but complete.`

// Overflow reports whether the given usage no longer fits the model's
// context window with output headroom reserved.
func Overflow(tokens types.TokenUsage, model *types.Model) bool {
	if model.ContextWindow <= 0 {
		return false
	}
	reserve := model.MaxOutput
	if reserve > compactReserve {
		reserve = compactReserve
	}
	return tokens.Total() > model.ContextWindow-reserve
}

// estimateTokens is a rough chars/4 token estimate.
func estimateTokens(text string) int {
	return len(text) / 4
}

// Prune walks tool outputs newest to oldest, skipping the last
// ProtectedUserTurns user turns, and marks older completed outputs as
// compacted once the protected budget is spent. It is a pure metadata
// change and idempotent; the returned count is the token estimate of
// newly pruned output.
func (s *Service) Prune(ctx context.Context, sessionID string) (int, error) {
	messages, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	// Everything from the Nth-newest user message onward is protected.
	cutoff := len(messages)
	seenUsers := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			seenUsers++
			if seenUsers >= ProtectedUserTurns {
				cutoff = i
				break
			}
		}
	}
	if seenUsers < ProtectedUserTurns {
		return 0, nil
	}

	type candidate struct {
		part *types.ToolPart
		est  int
	}
	var candidates []candidate
	protected := 0

	// Newest to oldest over the prunable prefix.
	for i := cutoff - 1; i >= 0; i-- {
		parts, err := s.repo.ListParts(ctx, messages[i].ID)
		if err != nil {
			return 0, err
		}
		for j := len(parts) - 1; j >= 0; j-- {
			tp, ok := parts[j].(*types.ToolPart)
			if !ok || tp.State.Status != types.ToolStateCompleted || tp.State.Time.Compacted != nil {
				continue
			}
			est := estimateTokens(tp.State.Output)
			if protected < PruneProtect {
				protected += est
				continue
			}
			candidates = append(candidates, candidate{part: tp, est: est})
		}
	}

	total := 0
	for _, c := range candidates {
		total += c.est
	}
	if total < PruneMinimum {
		return 0, nil
	}

	now := nowMilli()
	for _, c := range candidates {
		c.part.State.Time.Compacted = &now
		if err := s.repo.SavePart(ctx, c.part, ""); err != nil {
			return 0, err
		}
	}

	logging.Info().Str("sessionID", sessionID).
		Int("parts", len(candidates)).Int("tokens", total).
		Msg("pruned old tool outputs")
	return total, nil
}

// Compact synthesises a summary assistant message over the
// not-yet-compacted history. Future prompt reconstruction starts from
// the summary. A failure other than Aborted is recorded on the
// summary message, leaving the session recoverable.
func (s *Service) Compact(
	ctx context.Context,
	sess *types.Session,
	agent *types.Agent,
	prov provider.Provider,
	model *types.Model,
	parentID string,
) error {
	compacting := nowMilli()
	s.repo.UpdateSession(ctx, sess.ID, func(u *types.Session) {
		u.Time.Compacting = &compacting
	})
	defer s.repo.UpdateSession(context.Background(), sess.ID, func(u *types.Session) {
		u.Time.Compacting = nil
	})

	summary := &types.Message{
		ID:         id.Ascending(id.Message),
		SessionID:  sess.ID,
		Role:       "assistant",
		ParentID:   parentID,
		ProviderID: prov.ID(),
		ModelID:    model.ID,
		Mode:       agent.Name,
		Summary:    true,
		Path:       &types.MessagePath{Cwd: sess.Directory, Root: sess.Directory},
		Time:       types.MessageTime{Created: nowMilli()},
	}
	if err := s.repo.SaveMessage(ctx, summary); err != nil {
		return err
	}

	textPart := &types.TextPart{
		PartBase: newPartBase(sess.ID, summary.ID),
		Time:     &types.PartTime{Start: nowMilli()},
	}

	err := s.streamSummary(ctx, sess, prov, model, summary, textPart)
	completed := nowMilli()
	if err != nil {
		named := types.AsNamedError(err)
		if errors.Is(named, &types.NamedError{Name: types.ErrAborted}) {
			return named
		}
		summary.Error = named
		summary.Time.Completed = &completed
		s.repo.SaveMessage(context.Background(), summary)
		return named
	}

	summary.Time.Completed = &completed
	if err := s.repo.SaveMessage(ctx, summary); err != nil {
		return err
	}

	s.bus.Publish(event.SessionCompacted, event.SessionCompactedData{
		SessionID: sess.ID,
		MessageID: summary.ID,
	})
	return nil
}

func (s *Service) streamSummary(
	ctx context.Context,
	sess *types.Session,
	prov provider.Provider,
	model *types.Model,
	summary *types.Message,
	textPart *types.TextPart,
) error {
	history, err := s.summaryInput(ctx, sess, summary)
	if err != nil {
		return err
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model:     model.ID,
		Messages:  history,
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	decoder := provider.NewDecoder(stream)
	for {
		if ctx.Err() != nil {
			return types.NewAbortedError()
		}
		ev, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch e := ev.(type) {
		case provider.TextDelta:
			textPart.Text += e.Text
			if err := s.repo.SavePart(ctx, textPart, e.Text); err != nil {
				return err
			}
		case provider.FinishStep:
			summary.Tokens.Input += e.Usage.Input
			summary.Tokens.Output += e.Usage.Output
			summary.Cost += model.Cost(e.Usage)
		case provider.StreamError:
			return e.Err
		}
	}

	if textPart.Text == "" {
		return errors.New("summary stream produced no text")
	}
	end := nowMilli()
	textPart.Time.End = &end
	return s.repo.SavePart(ctx, textPart, "")
}

// summaryInput renders the not-yet-compacted history as one user
// message plus the summary instruction.
func (s *Service) summaryInput(ctx context.Context, sess *types.Session, summary *types.Message) ([]*schema.Message, error) {
	messages, err := s.repo.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, m := range messages {
		if m.ID == summary.ID || (m.Role == "assistant" && m.Summary) {
			continue
		}
		parts, err := s.repo.ListParts(ctx, m.ID)
		if err != nil {
			continue
		}

		label := "USER"
		if m.Role == "assistant" {
			label = "ASSISTANT"
		}
		sb.WriteString(label + ":\n")
		for _, part := range parts {
			switch p := part.(type) {
			case *types.TextPart:
				sb.WriteString(p.Text + "\n")
			case *types.ToolPart:
				sb.WriteString("[tool " + p.Tool + "]\n")
				if p.State.Status == types.ToolStateCompleted && p.State.Time.Compacted == nil {
					output := p.State.Output
					if len(output) > 500 {
						output = output[:500] + "..."
					}
					sb.WriteString(output + "\n")
				}
			}
		}
		sb.WriteString("\n")
	}

	return []*schema.Message{
		{Role: schema.System, Content: "You are a conversation summarizer."},
		{Role: schema.User, Content: sb.String() + "\n" + summaryPrompt},
	}, nil
}
