package permission

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command represents a parsed shell command with its arguments.
type Command struct {
	Name string   // Command name (e.g., "rm", "git")
	Args []string // Command arguments
}

// ParseCommands parses a shell command string into structured commands.
func ParseCommands(command string) ([]Command, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.CallExpr:
			cmd := extractCommand(n)
			if cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

// extractCommand extracts command name and arguments from a CallExpr.
func extractCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &Command{}

	// Extract command name from first word
	cmd.Name = wordToString(call.Args[0])
	if cmd.Name == "" {
		return nil
	}

	// Extract arguments
	for _, arg := range call.Args[1:] {
		cmd.Args = append(cmd.Args, wordToString(arg))
	}

	return cmd
}

// wordToString converts a syntax.Word to a string.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			// Variable expansion - return placeholder
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			// Command substitution - ignore the content, mark as dynamic
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// genericTokens are command names too unspecific to generalize into a
// wildcard rule: interpreters and wrappers execute arbitrary payloads, and
// control keywords carry no operation of their own.
var genericTokens = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "fish": true, "dash": true, "ksh": true,
	"sudo": true, "env": true, "xargs": true, "exec": true, "eval": true,
	"command": true, "builtin": true, "source": true, "nohup": true, "nice": true,
	"time": true, "if": true, "then": true, "else": true, "fi": true,
	"for": true, "while": true, "do": true, "done": true,
	"case": true, "esac": true, "function": true,
}

// LeadingToken extracts the invocation token of a Bash rule argument for
// cross-scope generalization. The wildcard marker is stripped before
// parsing. It reports false when the argument has no single unambiguous
// token: parse failures, compound commands naming different programs,
// generic tokens, single letters, and dynamic or path-qualified names.
func LeadingToken(arg string) (string, bool) {
	text, _ := splitCommandWildcard(arg)
	commands, err := ParseCommands(text)
	if err != nil || len(commands) == 0 {
		return "", false
	}

	name := commands[0].Name
	for _, cmd := range commands[1:] {
		if cmd.Name != name {
			return "", false
		}
	}

	if len(name) <= 1 || genericTokens[name] {
		return "", false
	}
	if strings.ContainsAny(name, "$/\\") {
		return "", false
	}
	return name, true
}
