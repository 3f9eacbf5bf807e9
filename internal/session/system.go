package session

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/opencode-ai/core/pkg/types"
)

const basePrompt = `You are a coding agent running inside a terminal-based tool. You help the user with software engineering tasks: answering questions about the codebase, editing files, running commands, and verifying your work.

Be direct and concise. Prefer reading code over guessing. Use the todo tools to track multi-step work. When you change files, keep the project's existing conventions.`

const anthropicPromptSuffix = `You may use extended thinking before responding when the task warrants it.`

// ruleFiles are project instruction files, in order of preference; the
// first one present in the worktree is appended to the system prompt.
var ruleFiles = []string{"AGENTS.md", "CLAUDE.md"}

// systemPrompt composes the system prompt snapshot for one turn:
// provider-specific base, environment snapshot, then project rules.
// The result is persisted on the assistant message.
func (s *Service) systemPrompt(sess *types.Session, agent *types.Agent, providerID string) []string {
	prompts := []string{basePrompt}
	if providerID == "anthropic" {
		prompts[0] += "\n\n" + anthropicPromptSuffix
	}
	if agent.Prompt != "" {
		prompts = append(prompts, agent.Prompt)
	}

	prompts = append(prompts, environmentSnapshot(sess.Directory))

	for _, name := range ruleFiles {
		data, err := os.ReadFile(filepath.Join(sess.Directory, name))
		if err != nil {
			continue
		}
		prompts = append(prompts, fmt.Sprintf("Project instructions from %s:\n\n%s", name, string(data)))
		break
	}

	return prompts
}

func environmentSnapshot(directory string) string {
	return fmt.Sprintf(`<environment>
Working directory: %s
Platform: %s/%s
Date: %s
</environment>`,
		directory, runtime.GOOS, runtime.GOARCH,
		time.Now().Format("2006-01-02"))
}
