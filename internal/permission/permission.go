// Package permission implements the permission-rule grammar and coverage
// relation shared by the rule store and the detectors.
package permission

import "fmt"

// Validation failure reasons recorded when a candidate rule is dropped.
const (
	ReasonEmpty        = "empty rule"
	ReasonTooLong      = "exceeds maximum rule length"
	ReasonLineBreak    = "contains a line break"
	ReasonHeredoc      = "contains a heredoc marker"
	ReasonBareCategory = "bare category identifier; expand to a concrete rule"
	ReasonMultiClause  = "multiple comma-separated tool clauses"
	ReasonShape        = "must be ToolName(argument) with an uppercase tool name"
)

// InvalidRuleError is returned when a candidate rule fails grammar validation.
type InvalidRuleError struct {
	Rule   string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule %q: %s", e.Rule, e.Reason)
}

// IsInvalidRule checks if an error is a rule validation failure.
func IsInvalidRule(err error) bool {
	_, ok := err.(*InvalidRuleError)
	return ok
}

// InvalidReason returns the validation failure reason, or "" for other errors.
func InvalidReason(err error) string {
	if e, ok := err.(*InvalidRuleError); ok {
		return e.Reason
	}
	return ""
}
