package permission

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ParseRule splits a ToolName(argument) rule into its tool name and argument.
// Rules without an argument list (such as mcp__ tool references) do not parse.
func ParseRule(rule string) (tool, arg string, ok bool) {
	open := strings.Index(rule, "(")
	if open <= 0 || !strings.HasSuffix(rule, ")") {
		return "", "", false
	}
	return rule[:open], rule[open+1 : len(rule)-1], true
}

// Covers reports whether the general rule covers the specific rule: every
// invocation the specific rule would allow is also allowed by the general
// one. Equal rules cover each other; rules that do not parse (mcp__ forms)
// cover only themselves.
func Covers(general, specific string) bool {
	if general == specific {
		return true
	}

	gTool, gArg, gOK := ParseRule(general)
	sTool, sArg, sOK := ParseRule(specific)
	if !gOK || !sOK || gTool != sTool {
		return false
	}

	// Root wildcard covers every argument of the same tool.
	if gArg == "*" || gArg == ":*" {
		return true
	}

	if gTool == "Bash" {
		return coversCommand(gArg, sArg)
	}
	return coversArgument(gArg, sArg)
}

// coversCommand implements the command-prefix hierarchy: "git status:*"
// covers "git status --short", "git:*" covers both.
func coversCommand(generalArg, specificArg string) bool {
	prefix, wildcard := splitCommandWildcard(generalArg)
	if !wildcard {
		return generalArg == specificArg
	}

	specific, _ := splitCommandWildcard(specificArg)
	if specific == prefix {
		return true
	}
	return strings.HasPrefix(specific, prefix+" ")
}

// splitCommandWildcard strips a trailing ":*" or " *" wildcard marker from a
// Bash rule argument, reporting whether one was present.
func splitCommandWildcard(arg string) (string, bool) {
	if strings.HasSuffix(arg, ":*") {
		return arg[:len(arg)-2], true
	}
	if strings.HasSuffix(arg, " *") {
		return arg[:len(arg)-2], true
	}
	return arg, false
}

// coversArgument matches path- and domain-shaped arguments: a glob argument
// on the general rule covers any specific argument it matches.
func coversArgument(generalArg, specificArg string) bool {
	if !strings.ContainsAny(generalArg, "*?[{") {
		return generalArg == specificArg
	}
	matched, err := doublestar.Match(generalArg, specificArg)
	if err != nil {
		return false
	}
	return matched
}

// CoveredBy returns the first rule in existing that covers candidate, or ""
// when none does.
func CoveredBy(candidate string, existing []string) string {
	for _, rule := range existing {
		if Covers(rule, candidate) {
			return rule
		}
	}
	return ""
}

// WildcardFor builds the command wildcard rule for an invocation token.
// WildcardFor("git") returns "Bash(git:*)".
func WildcardFor(token string) string {
	return "Bash(" + token + ":*)"
}

// IsWildcard reports whether a rule's argument carries a wildcard marker.
func IsWildcard(rule string) bool {
	_, arg, ok := ParseRule(rule)
	if !ok {
		return false
	}
	if arg == "*" || arg == ":*" {
		return true
	}
	if _, wildcard := splitCommandWildcard(arg); wildcard {
		return true
	}
	return strings.ContainsAny(arg, "*?[{")
}
