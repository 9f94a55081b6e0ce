package event

import "time"

// ApprovalRecordedData is the data for approval.recorded events.
type ApprovalRecordedData struct {
	RuleText  string    `json:"rule_text"`
	ScopeID   string    `json:"scope_id"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LogRotatedData is the data for log.rotated events.
type LogRotatedData struct {
	Archive string `json:"archive"`
	Size    int64  `json:"size"`
}

// SuggestionCreatedData is the data for suggestion.created events.
type SuggestionCreatedData struct {
	SuggestionID  string   `json:"suggestion_id"`
	Component     string   `json:"component"`
	Tier          string   `json:"tier"`
	Confidence    float64  `json:"confidence"`
	ProposedRules []string `json:"proposed_rules"`
}

// RulesLearnedData is the data for rules.learned events.
type RulesLearnedData struct {
	BatchID string   `json:"batch_id"`
	Source  string   `json:"source"`
	Added   []string `json:"added"`
	Skipped []string `json:"skipped,omitempty"`
}

// FeedbackRecordedData is the data for feedback.recorded events.
type FeedbackRecordedData struct {
	SuggestionID string `json:"suggestion_id"`
	Component    string `json:"component"`
	Accepted     bool   `json:"accepted"`
}

// ThresholdAdjustment describes one tier parameter change.
type ThresholdAdjustment struct {
	Tier      string  `json:"tier"`
	Parameter string  `json:"parameter"`
	Before    float64 `json:"before"`
	After     float64 `json:"after"`
	Reason    string  `json:"reason"`
}

// ThresholdsRecalibratedData is the data for thresholds.recalibrated events.
type ThresholdsRecalibratedData struct {
	Version     int                   `json:"version"`
	Adjustments []ThresholdAdjustment `json:"adjustments"`
}
