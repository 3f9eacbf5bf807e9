package permission

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// BashCommand is one parsed invocation inside a shell command line.
type BashCommand struct {
	Name       string
	Args       []string
	Subcommand string // first non-flag argument, e.g. "commit" in "git commit"
}

// ParseBashCommands parses a command line into its invocations,
// including those behind pipes, && and ;.
func ParseBashCommands(command string) ([]BashCommand, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []BashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands, nil
}

// BashKeys returns the permission keys for a command line, one per
// invocation: "name subcommand" when a subcommand exists, else "name".
// An unparseable command line yields the raw string so it still hits
// the ruleset.
func BashKeys(command string) []string {
	commands, err := ParseBashCommands(command)
	if err != nil || len(commands) == 0 {
		return []string{command}
	}

	keys := make([]string, 0, len(commands))
	for _, cmd := range commands {
		if cmd.Subcommand != "" {
			keys = append(keys, cmd.Name+" "+cmd.Subcommand)
		} else {
			keys = append(keys, cmd.Name)
		}
	}
	return keys
}

// BashPatterns suggests "always" rule patterns for a command line,
// e.g. "git commit -m x" -> "bash:git commit *".
func BashPatterns(command string) []string {
	commands, err := ParseBashCommands(command)
	if err != nil || len(commands) == 0 {
		return []string{"bash:" + command}
	}

	patterns := make([]string, 0, len(commands))
	for _, cmd := range commands {
		switch {
		case cmd.Subcommand != "":
			patterns = append(patterns, "bash:"+cmd.Name+" "+cmd.Subcommand+" *")
		case len(cmd.Args) > 0:
			patterns = append(patterns, "bash:"+cmd.Name+" *")
		default:
			patterns = append(patterns, "bash:"+cmd.Name)
		}
	}
	return patterns
}

func extractCommand(call *syntax.CallExpr) *BashCommand {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &BashCommand{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)
		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}
	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, dq := range p.Parts {
				if lit, ok := dq.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String()
}
