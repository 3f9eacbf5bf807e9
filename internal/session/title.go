package session

import (
	"context"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/core/internal/logging"
	"github.com/opencode-ai/core/internal/provider"
	"github.com/opencode-ai/core/pkg/types"
)

const titlePrompt = `Generate a short title (at most 50 characters) for a conversation that starts with the message below. Reply with the title only, no quotes.`

// shouldGenerateTitle reports whether the session still carries its
// placeholder title.
func (s *Service) shouldGenerateTitle(sess *types.Session) bool {
	return sess.Title == "" || sess.Title == "New Session"
}

// generateTitle derives a session title from the first prompt with a
// small completion. Best effort: failures are logged and the
// placeholder stays.
func (s *Service) generateTitle(
	ctx context.Context,
	sess *types.Session,
	prov provider.Provider,
	model *types.Model,
	in PromptInput,
) {
	var first string
	for _, p := range in.Parts {
		if p.Type == "" || p.Type == "text" {
			first = p.Text
			break
		}
	}
	if strings.TrimSpace(first) == "" {
		return
	}
	if len(first) > 600 {
		first = first[:600]
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: titlePrompt},
			{Role: schema.User, Content: first},
		},
		MaxTokens: 50,
	})
	if err != nil {
		logging.Debug().Str("sessionID", sess.ID).Err(err).Msg("title generation failed")
		return
	}
	defer stream.Close()

	var title strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return
		}
		title.WriteString(msg.Content)
	}

	cleaned := strings.TrimSpace(strings.Trim(title.String(), `"'`))
	if cleaned == "" {
		return
	}
	if len(cleaned) > 100 {
		cleaned = cleaned[:100]
	}

	if _, err := s.repo.UpdateSession(ctx, sess.ID, func(u *types.Session) {
		u.Title = cleaned
	}); err != nil {
		logging.Debug().Str("sessionID", sess.ID).Err(err).Msg("failed to save title")
	}
}
