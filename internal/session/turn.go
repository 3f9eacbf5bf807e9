package session

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/hook"
	"github.com/opencode-ai/core/internal/id"
	"github.com/opencode-ai/core/internal/lock"
	"github.com/opencode-ai/core/internal/logging"
	"github.com/opencode-ai/core/internal/provider"
	"github.com/opencode-ai/core/internal/repo"
	"github.com/opencode-ai/core/pkg/types"
)

const (
	// MaxSteps bounds the agentic loop.
	MaxSteps = 50
	// MaxRetries bounds consecutive transient provider retries; the
	// count resets after every successful step.
	MaxRetries = 10
	// RetryInitialInterval seeds the exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval caps a single backoff delay.
	RetryMaxInterval = 30 * time.Second
)

// errCompacted ends a turn that was replaced by a summary message.
var errCompacted = errors.New("turn ended by compaction")

// PromptInput is one user prompt.
type PromptInput struct {
	SessionID string          `json:"sessionID"`
	Agent     string          `json:"agent,omitempty"`
	Model     *types.ModelRef `json:"model,omitempty"`
	Parts     []UserPart      `json:"parts"`
}

// UserPart is one part of the user message body.
type UserPart struct {
	Type      string `json:"type"` // "text" | "file"
	Text      string `json:"text,omitempty"`
	Synthetic bool   `json:"synthetic,omitempty"`
	Mime      string `json:"mime,omitempty"`
	URL       string `json:"url,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// Prompt runs one turn: it acquires the session lock, persists the
// user message, streams the assistant reply with tool dispatch, and
// finalises the assistant message on every exit path. The returned
// message is terminal: completed or carrying its error.
func (s *Service) Prompt(ctx context.Context, in PromptInput) (*types.Message, error) {
	sess, err := s.repo.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	agent := s.Agent(in.Agent)
	prov, model, err := s.resolveModel(in.Model, &agent)
	if err != nil {
		return nil, err
	}

	// Pre-flight: with compaction disabled an overflowing session
	// cannot start a turn.
	if s.DisableCompaction {
		if last, err := s.lastUsage(ctx, sess.ID); err == nil && Overflow(last, model) {
			return nil, types.NewNamedError(types.ErrOverflow,
				"context window exceeded and compaction is disabled")
		}
	}

	token, err := s.locks.Acquire(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	defer token.Release()
	turnCtx := token.Context()

	// Snapshot file state for later diffing.
	if s.tracker != nil {
		if err := s.tracker.Snapshot(sess.Directory); err != nil {
			logging.Debug().Str("sessionID", sess.ID).Err(err).Msg("file snapshot failed")
		}
	}

	userMsg, err := s.createUserMessage(ctx, sess, &agent, in)
	if err != nil {
		return nil, err
	}

	assistant := &types.Message{
		ID:         id.Ascending(id.Message),
		SessionID:  sess.ID,
		Role:       "assistant",
		ParentID:   userMsg.ID,
		ProviderID: prov.ID(),
		ModelID:    model.ID,
		Mode:       agent.Name,
		System:     s.systemPrompt(sess, &agent, prov.ID()),
		Path:       &types.MessagePath{Cwd: sess.Directory, Root: sess.Directory},
		Time:       types.MessageTime{Created: nowMilli()},
	}
	if err := s.repo.SaveMessage(ctx, assistant); err != nil {
		return nil, err
	}

	turnErr := s.runTurn(turnCtx, sess, &agent, prov, model, assistant)
	s.finishTurn(token, assistant, turnErr)

	if s.tracker != nil {
		if err := s.tracker.Flush(context.Background(), sess.ID, sess.Directory); err != nil {
			logging.Debug().Str("sessionID", sess.ID).Err(err).Msg("diff flush failed")
		}
	}

	if s.shouldGenerateTitle(sess) {
		go s.generateTitle(context.Background(), sess, prov, model, in)
	}

	final, err := s.repo.GetMessage(context.Background(), assistant.ID)
	if err != nil {
		return assistant, nil
	}
	return final, nil
}

func (s *Service) resolveModel(ref *types.ModelRef, agent *types.Agent) (provider.Provider, *types.Model, error) {
	if ref == nil {
		ref = agent.Model
	}
	if ref == nil {
		model, err := s.providers.DefaultModel()
		if err != nil {
			return nil, nil, err
		}
		ref = &types.ModelRef{ProviderID: model.ProviderID, ModelID: model.ID}
	}

	prov, err := s.providers.Get(ref.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	model, err := s.providers.GetModel(ref.ProviderID, ref.ModelID)
	if err != nil {
		return nil, nil, err
	}
	return prov, model, nil
}

func (s *Service) createUserMessage(ctx context.Context, sess *types.Session, agent *types.Agent, in PromptInput) (*types.Message, error) {
	userMsg := &types.Message{
		ID:        id.Ascending(id.Message),
		SessionID: sess.ID,
		Role:      "user",
		Agent:     agent.Name,
		Model:     in.Model,
		Time:      types.MessageTime{Created: nowMilli()},
	}

	err := s.repo.Tx(ctx, func(q repo.Querier) error {
		if err := s.repo.SaveMessageTx(ctx, q, userMsg); err != nil {
			return err
		}
		for _, p := range in.Parts {
			var part types.Part
			switch p.Type {
			case "file":
				part = &types.FilePart{
					PartBase: newPartBase(sess.ID, userMsg.ID),
					Mime:     p.Mime,
					URL:      p.URL,
					Filename: p.Filename,
				}
			default:
				part = &types.TextPart{
					PartBase:  newPartBase(sess.ID, userMsg.ID),
					Text:      p.Text,
					Synthetic: p.Synthetic,
				}
			}
			if err := s.repo.SavePartTx(ctx, q, part, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return userMsg, nil
}

// runTurn drives the step loop until the model stops, errors, or the
// turn is compacted away.
func (s *Service) runTurn(
	ctx context.Context,
	sess *types.Session,
	agent *types.Agent,
	prov provider.Provider,
	model *types.Model,
	assistant *types.Message,
) error {
	retry := s.newRetryBackoff(ctx)

	for step := 0; step < MaxSteps; step++ {
		if ctx.Err() != nil {
			return types.NewAbortedError()
		}

		req, err := s.buildRequest(ctx, sess, agent, model, assistant)
		if err != nil {
			return types.AsNamedError(err)
		}

		stream, err := prov.CreateCompletion(ctx, req)
		if err != nil {
			if wait := s.retryDelay(retry, err); wait >= 0 {
				logging.Warn().Str("sessionID", sess.ID).Err(err).
					Dur("wait", wait).Msg("provider error, retrying")
				if !sleepCtx(ctx, wait) {
					return types.NewAbortedError()
				}
				step--
				continue
			}
			return provider.Classify(prov.ID(), err)
		}

		outcome, err := s.consumeStep(ctx, sess, agent, model, assistant, stream)
		stream.Close()
		if err != nil {
			if ctx.Err() != nil {
				return types.NewAbortedError()
			}
			if wait := s.retryDelay(retry, err); wait >= 0 {
				if !sleepCtx(ctx, wait) {
					return types.NewAbortedError()
				}
				step--
				continue
			}
			if errors.Is(err, errCompacted) {
				return errCompacted
			}
			return types.AsNamedError(err)
		}
		retry.Reset()

		switch {
		case outcome.finishReason == "length" || outcome.finishReason == "max_tokens":
			return types.NewNamedError(types.ErrOutputLength, "model output length limit reached")
		case outcome.toolCalls > 0:
			// Overflow is tested between steps, after usage landed.
			if !s.DisableCompaction && Overflow(outcome.usage, model) {
				if err := s.relieveOverflow(ctx, sess, agent, prov, model, assistant); err != nil {
					return err
				}
			}
			continue
		default:
			return nil
		}
	}

	return types.NewNamedError(types.ErrUnknown, "maximum turn steps exceeded")
}

// stepOutcome summarises one consumed model step.
type stepOutcome struct {
	finishReason string
	toolCalls    int
	usage        types.TokenUsage
}

// consumeStep drains one provider stream, persisting parts as they
// arrive and dispatching tool calls.
func (s *Service) consumeStep(
	ctx context.Context,
	sess *types.Session,
	agent *types.Agent,
	model *types.Model,
	assistant *types.Message,
	stream provider.CompletionStream,
) (*stepOutcome, error) {
	stepStart := &types.StepStartPart{PartBase: newPartBase(sess.ID, assistant.ID)}
	if err := s.repo.SavePart(ctx, stepStart, ""); err != nil {
		return nil, err
	}

	outcome := &stepOutcome{}
	var textPart *types.TextPart
	var reasoningPart *types.ReasoningPart

	decoder := provider.NewDecoder(stream)
	for {
		if ctx.Err() != nil {
			s.closeOpenParts(textPart, reasoningPart)
			return nil, types.NewAbortedError()
		}

		ev, err := decoder.Next()
		if err != nil { // io.EOF
			break
		}

		switch e := ev.(type) {
		case provider.TextDelta:
			if textPart == nil {
				textPart = &types.TextPart{
					PartBase: newPartBase(sess.ID, assistant.ID),
					Time:     &types.PartTime{Start: nowMilli()},
				}
			}
			textPart.Text += e.Text
			if err := s.repo.SavePart(ctx, textPart, e.Text); err != nil {
				return nil, err
			}

		case provider.TextEnd:
			if textPart != nil {
				end := nowMilli()
				textPart.Time.End = &end
				if err := s.repo.SavePart(ctx, textPart, ""); err != nil {
					return nil, err
				}
				textPart = nil
			}

		case provider.ReasoningDelta:
			if reasoningPart == nil {
				reasoningPart = &types.ReasoningPart{
					PartBase: newPartBase(sess.ID, assistant.ID),
					Time:     types.PartTime{Start: nowMilli()},
				}
			}
			reasoningPart.Text += e.Text
			if err := s.repo.SavePart(ctx, reasoningPart, e.Text); err != nil {
				return nil, err
			}

		case provider.ReasoningEnd:
			if reasoningPart != nil {
				end := nowMilli()
				reasoningPart.Time.End = &end
				if err := s.repo.SavePart(ctx, reasoningPart, ""); err != nil {
					return nil, err
				}
				reasoningPart = nil
			}

		case provider.ToolCall:
			outcome.toolCalls++
			if err := s.runTool(ctx, sess, agent, assistant, e); err != nil {
				// Tool errors stay local to their part.
				logging.Debug().Str("tool", e.Name).Err(err).Msg("tool call failed")
			}

		case provider.FinishStep:
			outcome.finishReason = e.Reason
			outcome.usage = e.Usage
			s.accumulateUsage(ctx, assistant, model, e.Usage)

		case provider.StreamError:
			s.closeOpenParts(textPart, reasoningPart)
			return nil, e.Err
		}
	}

	s.closeOpenParts(textPart, reasoningPart)

	stepFinish := &types.StepFinishPart{
		PartBase: newPartBase(sess.ID, assistant.ID),
		Cost:     model.Cost(outcome.usage),
		Tokens:   outcome.usage,
	}
	if err := s.repo.SavePart(ctx, stepFinish, ""); err != nil {
		return nil, err
	}

	return outcome, nil
}

func (s *Service) closeOpenParts(textPart *types.TextPart, reasoningPart *types.ReasoningPart) {
	ctx := context.Background()
	end := nowMilli()
	if textPart != nil && textPart.Time.End == nil {
		textPart.Time.End = &end
		s.repo.SavePart(ctx, textPart, "")
	}
	if reasoningPart != nil && reasoningPart.Time.End == nil {
		reasoningPart.Time.End = &end
		s.repo.SavePart(ctx, reasoningPart, "")
	}
}

// accumulateUsage grows the assistant's token and cost counters; they
// never shrink during a stream.
func (s *Service) accumulateUsage(ctx context.Context, assistant *types.Message, model *types.Model, usage types.TokenUsage) {
	assistant.Tokens.Input += usage.Input
	assistant.Tokens.Output += usage.Output
	assistant.Tokens.Reasoning += usage.Reasoning
	assistant.Tokens.Cache.Read += usage.Cache.Read
	assistant.Tokens.Cache.Write += usage.Cache.Write
	assistant.Cost += model.Cost(usage)
	s.repo.SaveMessage(ctx, assistant)
}

// relieveOverflow prunes old tool outputs first and compacts the
// session when pruning was not enough. Compaction ends the turn.
func (s *Service) relieveOverflow(
	ctx context.Context,
	sess *types.Session,
	agent *types.Agent,
	prov provider.Provider,
	model *types.Model,
	assistant *types.Message,
) error {
	pruned, err := s.Prune(ctx, sess.ID)
	if err != nil {
		logging.Warn().Str("sessionID", sess.ID).Err(err).Msg("prune failed")
	}
	if pruned >= PruneMinimum {
		return nil
	}

	if err := s.Compact(ctx, sess, agent, prov, model, assistant.ParentID); err != nil {
		return types.AsNamedError(err)
	}
	return errCompacted
}

// finishTurn finalises the assistant message exactly once and always
// publishes session.idle. Persistence here runs on a fresh context so
// a cancelled turn can still write its terminal state.
func (s *Service) finishTurn(token *lock.Token, assistant *types.Message, turnErr error) {
	ctx := context.Background()
	reason := "stop"

	switch {
	case turnErr == nil:
	case errors.Is(turnErr, errCompacted):
		reason = "compact"
	case token.Cancelled() || errors.Is(types.AsNamedError(turnErr), &types.NamedError{Name: types.ErrAborted}):
		reason = "error"
		assistant.Error = types.NewAbortedError()
		s.abortPendingTools(ctx, assistant)
	default:
		reason = "error"
		named := types.AsNamedError(turnErr)
		assistant.Error = named
		s.bus.Publish(event.SessionError, event.SessionErrorData{
			SessionID: assistant.SessionID,
			Error:     named,
		})
	}

	if assistant.Time.Completed == nil {
		completed := nowMilli()
		assistant.Time.Completed = &completed
	}
	if err := s.repo.SaveMessage(ctx, assistant); err != nil {
		logging.Error().Str("messageID", assistant.ID).Err(err).Msg("failed to finalise message")
	}

	s.hooks.SessionStop(ctx, hook.SessionStopInput{
		SessionID: assistant.SessionID,
		Reason:    reason,
	})
	s.hooks.Notify(ctx, hook.NotificationInput{
		SessionID: assistant.SessionID,
		Type:      "turn." + reason,
	})

	s.bus.Publish(event.SessionIdle, event.SessionIdleData{SessionID: assistant.SessionID})
}

// abortPendingTools transitions non-terminal tool parts of the
// message to an Aborted error.
func (s *Service) abortPendingTools(ctx context.Context, assistant *types.Message) {
	parts, err := s.repo.ListParts(ctx, assistant.ID)
	if err != nil {
		return
	}
	end := nowMilli()
	for _, p := range parts {
		tp, ok := p.(*types.ToolPart)
		if !ok || tp.State.Terminal() {
			continue
		}
		tp.State.Status = types.ToolStateError
		tp.State.Error = types.ErrAborted
		tp.State.Time.End = &end
		s.repo.SavePart(ctx, tp, "")
	}
}

func (s *Service) lastUsage(ctx context.Context, sessionID string) (types.TokenUsage, error) {
	messages, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return types.TokenUsage{}, err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			return messages[i].Tokens, nil
		}
	}
	return types.TokenUsage{}, nil
}

func (s *Service) newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// retryDelay returns the next backoff delay for a retryable error, or
// a negative duration when the error is terminal or retries ran out.
func (s *Service) retryDelay(retry backoff.BackOff, err error) time.Duration {
	if !provider.Retryable(err) {
		return -1
	}
	next := retry.NextBackOff()
	if next == backoff.Stop {
		return -1
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
