// Package permission implements the permission gate: ruleset
// evaluation per (tool, key) and interactive approval of tool calls
// over the event bus.
package permission

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/opencode-ai/core/pkg/types"
)

// Evaluate returns the action for a (tool, key) pair against an
// ordered ruleset: the first rule whose pattern matches wins, and the
// default is ask.
//
// A pattern is either "tool" (matches every key of that tool) or
// "tool:keypattern", where both sides use doublestar glob syntax. The
// key is tool-defined: a path for edit, a normalized command template
// for bash.
func Evaluate(tool, key string, rules []types.PermissionRule) string {
	for _, rule := range rules {
		if ruleMatches(rule.Pattern, tool, key) {
			return rule.Action
		}
	}
	return types.ActionAsk
}

// Merge layers rulesets by precedence: session overrides agent
// overrides project. Earlier rules win within one layer.
func Merge(session, agent, project []types.PermissionRule) []types.PermissionRule {
	merged := make([]types.PermissionRule, 0, len(session)+len(agent)+len(project))
	merged = append(merged, session...)
	merged = append(merged, agent...)
	merged = append(merged, project...)
	return merged
}

func ruleMatches(pattern, tool, key string) bool {
	toolPat, keyPat, hasKey := strings.Cut(pattern, ":")
	if ok, err := doublestar.Match(toolPat, tool); err != nil || !ok {
		return false
	}
	if !hasKey {
		return true
	}
	ok, err := doublestar.Match(keyPat, key)
	return err == nil && ok
}
