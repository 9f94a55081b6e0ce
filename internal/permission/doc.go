// Package permission implements the permission-rule grammar and the coverage
// relation between rules. It is the single source of truth for what counts as
// a well-formed rule and for when one rule makes another redundant.
//
// # Rule Grammar
//
// A rule is ToolName(argument) where the tool name starts with an uppercase
// letter:
//
//	Bash(git status:*)
//	Read(/etc/hosts)
//	WebFetch(domain:github.com)
//
// A dedicated set of prefixes bypasses the shape check: MCP tool references
// (mcp__server__tool) and web-fetch domain rules. Independent of shape, no
// rule may contain line breaks or heredoc markers, exceed MaxRuleLength, or
// consist of multiple comma-separated tool clauses.
//
// Bare category identifiers (internal names like file_write_operations) are
// explicitly invalid: they must be expanded to concrete rules before storage.
// ValidateRule reports each violation as an *InvalidRuleError with a stable
// Reason string that callers record when dropping a candidate.
//
// # Coverage
//
// Covers(general, specific) holds when every invocation the specific rule
// would allow is also allowed by the general rule. Bash rules follow the
// command-prefix hierarchy:
//
//	Bash(git status:*)  covers  Bash(git status --short)
//	Bash(git:*)         covers  Bash(git status:*)
//	Bash(*)             covers  any Bash rule
//
// Arguments of other tools are compared as paths or domains: a glob argument
// covers whatever it matches, so Read(/home/**) covers Read(/home/x/y.txt).
// Rules that do not parse, such as mcp__ references, cover only themselves.
//
// # Command Tokens
//
// ParseCommands parses shell text into structured commands, and LeadingToken
// reduces a Bash rule argument to its single invocation token when one
// exists:
//
//	token, ok := permission.LeadingToken("git status:*")
//	// token == "git", ok == true
//
// Interpreters, wrappers like sudo and xargs, control keywords, single
// letters, and dynamic or path-qualified names never yield a token; those
// commands are too unspecific to generalize.
package permission
