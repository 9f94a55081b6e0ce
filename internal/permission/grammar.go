package permission

import (
	"regexp"
	"strings"
)

// MaxRuleLength is the longest rule text the grammar accepts.
const MaxRuleLength = 200

// bypassPrefixes skip the uppercase/arity shape check. MCP tool references
// use lowercase double-underscore names with no argument list, and web-fetch
// domain rules carry a colon the shape check would otherwise reject.
var bypassPrefixes = []string{
	"mcp__",
	"WebFetch(domain:",
}

var (
	ruleShapeRe    = regexp.MustCompile(`^[A-Z][A-Za-z]*\(.+\)$`)
	bareCategoryRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	multiClauseRe  = regexp.MustCompile(`\)\s*,`)
)

// ValidateRule checks a candidate rule against the permission grammar.
// It returns nil for a valid rule and an *InvalidRuleError naming the
// violated constraint otherwise.
func ValidateRule(rule string) error {
	if rule == "" {
		return &InvalidRuleError{Rule: rule, Reason: ReasonEmpty}
	}
	if len(rule) > MaxRuleLength {
		return &InvalidRuleError{Rule: rule, Reason: ReasonTooLong}
	}
	if strings.ContainsAny(rule, "\n\r") {
		return &InvalidRuleError{Rule: rule, Reason: ReasonLineBreak}
	}
	// "<<" also catches "<<-".
	if strings.Contains(rule, "<<") || strings.Contains(rule, "EOF") {
		return &InvalidRuleError{Rule: rule, Reason: ReasonHeredoc}
	}

	for _, prefix := range bypassPrefixes {
		if strings.HasPrefix(rule, prefix) {
			return nil
		}
	}

	// Internal catalog names must never leak into stored rules.
	if bareCategoryRe.MatchString(rule) {
		return &InvalidRuleError{Rule: rule, Reason: ReasonBareCategory}
	}
	if multiClauseRe.MatchString(rule) {
		return &InvalidRuleError{Rule: rule, Reason: ReasonMultiClause}
	}
	if !ruleShapeRe.MatchString(rule) {
		return &InvalidRuleError{Rule: rule, Reason: ReasonShape}
	}
	return nil
}

// ValidateRules validates a batch and partitions it into valid rules and
// per-rule failure reasons, preserving input order.
func ValidateRules(rules []string) (valid []string, rejected map[string]string) {
	rejected = make(map[string]string)
	for _, rule := range rules {
		if err := ValidateRule(rule); err != nil {
			rejected[rule] = InvalidReason(err)
			continue
		}
		valid = append(valid, rule)
	}
	return valid, rejected
}
