// Package engine wires the learning pipeline together: the approval log
// feeds the detectors, decisions mutate the rule store and the feedback
// log, and feedback recalibrates the detection thresholds.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/catalog"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/confidence"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/config"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/detect"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/event"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/feedback"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/permission"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/rules"
)

// ErrSuggestionNotFound is returned when a decision references a
// suggestion the current evidence no longer produces.
var ErrSuggestionNotFound = errors.New("suggestion not found")

// Engine coordinates the stores and detectors behind the CLI and the HTTP
// surface. All mutating operations go through it so events are published
// consistently.
type Engine struct {
	cfg *config.Config

	approvals   *approval.Store
	rules       *rules.Store
	tracker     *feedback.Tracker
	learner     *feedback.Learner
	catalog     *catalog.Catalog
	detector    *detect.Detector
	generalizer *detect.Generalizer

	feedbackWindow int
}

// paths are the file locations of one engine instance. With an explicit
// data dir everything lives under it; otherwise the XDG layout applies.
type paths struct {
	approvals  string
	settings   string
	backups    string
	feedback   string
	thresholds string
}

func resolvePaths(cfg *config.Config) paths {
	if dir := cfg.DataDir; dir != "" {
		return paths{
			approvals:  filepath.Join(dir, "approvals.jsonl"),
			settings:   filepath.Join(dir, "settings.json"),
			backups:    filepath.Join(dir, "backups"),
			feedback:   filepath.Join(dir, "feedback.jsonl"),
			thresholds: filepath.Join(dir, "thresholds.json"),
		}
	}
	p := config.GetPaths()
	return paths{
		approvals:  p.ApprovalsLogPath(),
		settings:   p.SettingsPath(),
		backups:    p.BackupsDir(),
		feedback:   p.FeedbackLogPath(),
		thresholds: p.ThresholdsPath(),
	}
}

// New assembles an engine from configuration.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	p := resolvePaths(cfg)

	cat := catalog.Builtin()
	if cfg.CatalogFile != "" {
		if err := cat.LoadOverlayFile(cfg.CatalogFile); err != nil {
			return nil, err
		}
	}

	weights := applyWeights(confidence.DefaultWeights(), cfg.Weights)
	crossWeights := confidence.CrossScopeWeights()
	crossOpts := detect.GeneralizerOptions{MaxExamples: cfg.MaxRuleExamples}
	if cs := cfg.CrossScope; cs != nil {
		crossWeights = applyWeights(crossWeights, cs.Weights)
		crossOpts.Boost = cs.Boost
		crossOpts.MinScopes = cs.MinScopes
	}
	crossOpts.Weights = &crossWeights

	approvals := approval.NewStore(approval.Config{
		Path:       p.approvals,
		RotateSize: cfg.RotateSizeBytes,
	})
	ruleStore := rules.NewStore(rules.Config{
		SettingsPath: p.settings,
		BackupsDir:   p.backups,
		KeepBackups:  cfg.BackupRetention,
	})
	tracker := feedback.NewTracker(p.feedback)
	learner := feedback.NewLearner(feedback.LearnerConfig{
		Path:        p.thresholds,
		Tracker:     tracker,
		WindowDays:  cfg.FeedbackWindow,
		MinFeedback: cfg.MinFeedbackCount,
		Seeds:       tierSeeds(cfg.Tiers),
	})

	window := cfg.FeedbackWindow
	if window <= 0 {
		window = feedback.DefaultWindowDays
	}

	return &Engine{
		cfg:            cfg,
		approvals:      approvals,
		rules:          ruleStore,
		tracker:        tracker,
		learner:        learner,
		catalog:        cat,
		detector:       detect.NewDetectorWithOptions(approvals, cat, weights, detect.DetectorOptions{MaxExamples: cfg.MaxRuleExamples}),
		generalizer:    detect.NewGeneralizerWithOptions(approvals, crossOpts),
		feedbackWindow: window,
	}, nil
}

// applyWeights overlays non-zero config fields onto a weight set.
func applyWeights(base confidence.Weights, over *config.WeightsConfig) confidence.Weights {
	if over == nil {
		return base
	}
	if over.Base != 0 {
		base.Base = over.Base
	}
	if over.SessionCap != 0 {
		base.SessionCap = over.SessionCap
	}
	if over.SessionNorm != 0 {
		base.SessionNorm = over.SessionNorm
	}
	if over.ScopeFull != 0 {
		base.ScopeFull = over.ScopeFull
	}
	if over.ScopePartial != 0 {
		base.ScopePartial = over.ScopePartial
	}
	if over.ScopeMinimal != 0 {
		base.ScopeMinimal = over.ScopeMinimal
	}
	if over.ConsistencyCap != 0 {
		base.ConsistencyCap = over.ConsistencyCap
	}
	if over.RecencyBonus != 0 {
		base.RecencyBonus = over.RecencyBonus
	}
	if over.RecencyWindow != 0 {
		base.RecencyWindow = over.RecencyWindow
	}
	return base
}

// tierSeeds converts config tier entries into learner seeds, dropping
// unknown tier names with a warning.
func tierSeeds(tiers map[string]config.TierConfig) map[catalog.Tier]catalog.TierParams {
	if len(tiers) == 0 {
		return nil
	}
	seeds := make(map[catalog.Tier]catalog.TierParams, len(tiers))
	for name, tc := range tiers {
		tier, ok := catalog.ParseTier(name)
		if !ok {
			logging.Warn().Str("tier", name).Msg("ignoring unknown tier in config")
			continue
		}
		seeds[tier] = catalog.TierParams{
			MinOccurrences:      tc.MinOccurrences,
			WindowDays:          tc.WindowDays,
			ConfidenceThreshold: tc.ConfidenceThreshold,
		}
	}
	return seeds
}

// ApprovalLogPath returns the active approvals log location, for the
// trigger watcher.
func (e *Engine) ApprovalLogPath() string {
	return e.approvals.Path()
}

// Approvals exposes the event store for read-only inspection.
func (e *Engine) Approvals() *approval.Store {
	return e.approvals
}

// Rules exposes the rule store for read-only inspection.
func (e *Engine) Rules() *rules.Store {
	return e.rules
}

// RecordApproval appends one approval to the event log and announces it.
func (e *Engine) RecordApproval(ctx context.Context, ev approval.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := e.approvals.Append(ev); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.ApprovalRecorded, Data: event.ApprovalRecordedData{
		RuleText:  ev.RuleText,
		ScopeID:   ev.ScopeID,
		SessionID: ev.SessionID,
		Timestamp: ev.Timestamp,
	}})
	return nil
}

// DetectionResult is the outcome of one detection pass.
type DetectionResult struct {
	Success           bool                `json:"success"`
	Suggestions       []detect.Suggestion `json:"suggestions"`
	EventCount        int                 `json:"event_count"`
	SkippedCovered    int                 `json:"skipped_covered,omitempty"`
	ThresholdsVersion int                 `json:"thresholds_version"`
	Duration          time.Duration       `json:"duration_ns"`
	Warnings          []string            `json:"warnings,omitempty"`
}

// RunDetection executes one full detection pass: catalog tiers plus the
// cross-scope generalizer, minus anything the rule store already covers or
// the user has rejected. One suggestion.created event fires per result.
func (e *Engine) RunDetection(ctx context.Context) (*DetectionResult, error) {
	start := time.Now()

	params, version, err := e.learner.Params()
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	rejected, err := e.tracker.RejectedFingerprints(e.feedbackWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load rejections: %w", err)
	}

	suggestions, skipped, err := e.runDetectors(ctx, params, rejected)
	if err != nil {
		return nil, err
	}

	result := &DetectionResult{
		Success:           true,
		Suggestions:       suggestions,
		SkippedCovered:    skipped,
		ThresholdsVersion: version,
	}

	count, err := e.approvals.Count()
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to count events: %v", err))
	}
	result.EventCount = count

	for _, sug := range suggestions {
		event.Publish(event.Event{Type: event.SuggestionCreated, Data: event.SuggestionCreatedData{
			SuggestionID:  sug.ID,
			Component:     sug.Component,
			Tier:          string(sug.Tier),
			Confidence:    sug.Confidence,
			ProposedRules: sug.ProposedRules,
		}})
	}

	result.Duration = time.Since(start)
	logging.Info().Int("suggestions", len(suggestions)).Int("events", count).
		Int("covered", skipped).Dur("duration", result.Duration).Msg("detection pass complete")
	return result, nil
}

// runDetectors merges both detector outputs and drops suggestions whose
// proposed rules are all covered already.
func (e *Engine) runDetectors(ctx context.Context, params map[catalog.Tier]catalog.TierParams, rejected map[string]bool) ([]detect.Suggestion, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	suggestions, err := e.detector.Run(params, rejected)
	if err != nil {
		return nil, 0, err
	}

	crossParams, ok := params[catalog.TierCrossScope]
	if !ok {
		crossParams = catalog.DefaultParams()[catalog.TierCrossScope]
	}
	cross, err := e.generalizer.Run(crossParams, rejected)
	if err != nil {
		return nil, 0, err
	}
	suggestions = append(suggestions, cross...)

	current, err := e.rules.Rules()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load rules: %w", err)
	}

	kept := make([]detect.Suggestion, 0, len(suggestions))
	skipped := 0
	for _, sug := range suggestions {
		if allCovered(sug.ProposedRules, current) {
			skipped++
			logging.Debug().Str("suggestion", sug.ID).Msg("proposed rules already covered")
			continue
		}
		kept = append(kept, sug)
	}
	detect.SortSuggestions(kept)
	return kept, skipped, nil
}

func allCovered(proposed, existing []string) bool {
	for _, rule := range proposed {
		if permission.CoveredBy(rule, existing) == "" {
			return false
		}
	}
	return len(proposed) > 0
}

// FindSuggestion locates a current suggestion by fingerprint. Rejection
// suppression is bypassed so an earlier rejection can be reversed.
func (e *Engine) FindSuggestion(ctx context.Context, id string) (*detect.Suggestion, error) {
	params, _, err := e.learner.Params()
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	suggestions, _, err := e.runDetectors(ctx, params, nil)
	if err != nil {
		return nil, err
	}
	for i := range suggestions {
		if suggestions[i].ID == id {
			return &suggestions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSuggestionNotFound, id)
}

// Decision is one user verdict on a suggestion.
type Decision struct {
	SuggestionID string   `json:"suggestion_id"`
	Component    string   `json:"component"`
	Tier         string   `json:"tier"`
	Confidence   float64  `json:"confidence"`
	Accepted     bool     `json:"accepted"`
	Rules        []string `json:"rules,omitempty"`
}

// DecisionFor builds the decision corresponding to a suggestion.
func DecisionFor(sug detect.Suggestion, accepted bool) Decision {
	return Decision{
		SuggestionID: sug.ID,
		Component:    sug.Component,
		Tier:         string(sug.Tier),
		Confidence:   sug.Confidence,
		Accepted:     accepted,
		Rules:        sug.ProposedRules,
	}
}

// DecisionResult reports what a decision changed. Skipped candidates on an
// accept are partial success, not failure.
type DecisionResult struct {
	Success  bool                `json:"success"`
	Accepted bool                `json:"accepted"`
	BatchID  string              `json:"batch_id,omitempty"`
	Added    []string            `json:"added,omitempty"`
	Skipped  []rules.SkippedRule `json:"skipped,omitempty"`
	Backup   string              `json:"backup,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// ApplyDecision records a verdict. An accept adds the proposed rules first
// and then the feedback record, so a failed rule write leaves no trace; a
// reject only writes feedback. Rejected fingerprints suppress future
// detection passes until a later accept supersedes them.
func (e *Engine) ApplyDecision(ctx context.Context, d Decision) (*DecisionResult, error) {
	if d.SuggestionID == "" {
		return nil, errors.New("decision requires a suggestion id")
	}
	if d.Component == "" {
		d.Component = componentForFingerprint(d.SuggestionID)
	}

	result := &DecisionResult{Accepted: d.Accepted}

	if d.Accepted {
		if len(d.Rules) == 0 {
			return nil, fmt.Errorf("accepting %s requires its proposed rules", d.SuggestionID)
		}
		added, err := e.rules.Add(d.Rules, d.SuggestionID, d.Tier)
		if err != nil {
			return nil, fmt.Errorf("failed to store rules: %w", err)
		}
		result.BatchID = added.BatchID
		result.Added = added.Added
		result.Skipped = added.Skipped
		result.Backup = added.Backup

		if len(added.Added) > 0 {
			event.Publish(event.Event{Type: event.RulesLearned, Data: event.RulesLearnedData{
				BatchID: added.BatchID,
				Source:  d.SuggestionID,
				Added:   added.Added,
				Skipped: skippedRuleTexts(added.Skipped),
			}})
		}
	}

	rec := feedback.Record{
		Component:    d.Component,
		SuggestionID: d.SuggestionID,
		Confidence:   d.Confidence,
		Accepted:     d.Accepted,
	}
	if err := e.tracker.Record(rec); err != nil {
		if !d.Accepted {
			return nil, fmt.Errorf("failed to record feedback: %w", err)
		}
		// The rules are already stored; losing the feedback record is
		// worth a warning, not a rollback.
		result.Warnings = append(result.Warnings, fmt.Sprintf("rules stored but feedback not recorded: %v", err))
	} else {
		event.Publish(event.Event{Type: event.FeedbackRecorded, Data: event.FeedbackRecordedData{
			SuggestionID: d.SuggestionID,
			Component:    d.Component,
			Accepted:     d.Accepted,
		}})
	}

	result.Success = true
	return result, nil
}

func componentForFingerprint(id string) string {
	if strings.HasPrefix(id, "cross_scope:") {
		return catalog.ComponentCrossScope
	}
	return catalog.ComponentPatternDetector
}

func skippedRuleTexts(skipped []rules.SkippedRule) []string {
	if len(skipped) == 0 {
		return nil
	}
	texts := make([]string, 0, len(skipped))
	for _, s := range skipped {
		texts = append(texts, s.Rule)
	}
	return texts
}

// MarkReverted appends a superseding feedback record flagging an accepted
// suggestion as reverted. The log stays append-only.
func (e *Engine) MarkReverted(ctx context.Context, suggestionID string) error {
	if suggestionID == "" {
		return errors.New("a suggestion id is required")
	}

	records, err := e.tracker.Records(0)
	if err != nil {
		return fmt.Errorf("failed to read feedback: %w", err)
	}
	var latest *feedback.Record
	for i := range records {
		if records[i].SuggestionID == suggestionID {
			latest = &records[i]
		}
	}
	if latest == nil {
		return fmt.Errorf("no decision recorded for %s", suggestionID)
	}
	if !latest.Accepted {
		return fmt.Errorf("%s was rejected, not accepted; nothing to revert", suggestionID)
	}

	reverted := true
	rec := feedback.Record{
		Component:    latest.Component,
		SuggestionID: suggestionID,
		Confidence:   latest.Confidence,
		Accepted:     true,
		Reverted:     &reverted,
	}
	if err := e.tracker.Record(rec); err != nil {
		return fmt.Errorf("failed to record revert: %w", err)
	}

	event.Publish(event.Event{Type: event.FeedbackRecorded, Data: event.FeedbackRecordedData{
		SuggestionID: suggestionID,
		Component:    latest.Component,
		Accepted:     true,
	}})
	logging.Info().Str("suggestion", suggestionID).Msg("decision marked reverted")
	return nil
}

// RecalibrationResult is the outcome of one meta-learning pass. Skipped
// components surface as warnings.
type RecalibrationResult struct {
	Success     bool                  `json:"success"`
	Version     int                   `json:"version"`
	Adjustments []feedback.Adjustment `json:"adjustments,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
}

// RunRecalibration runs the meta-learner once and announces any threshold
// movement.
func (e *Engine) RunRecalibration(ctx context.Context) (*RecalibrationResult, error) {
	res, err := e.learner.Recalibrate()
	if err != nil {
		return nil, fmt.Errorf("recalibration failed: %w", err)
	}

	result := &RecalibrationResult{
		Success:     true,
		Version:     res.Version,
		Adjustments: res.Adjustments,
	}
	for component, reason := range res.Skipped {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s skipped: %s", component, reason))
	}
	sort.Strings(result.Warnings)

	if len(res.Adjustments) > 0 {
		adjustments := make([]event.ThresholdAdjustment, 0, len(res.Adjustments))
		for _, adj := range res.Adjustments {
			adjustments = append(adjustments, event.ThresholdAdjustment{
				Tier:      string(adj.Tier),
				Parameter: adj.Parameter,
				Before:    adj.Before,
				After:     adj.After,
				Reason:    adj.Reason,
			})
		}
		event.Publish(event.Event{Type: event.ThresholdsRecalibrated, Data: event.ThresholdsRecalibratedData{
			Version:     res.Version,
			Adjustments: adjustments,
		}})
	}
	return result, nil
}

// PruneApprovals removes approval events older than the window and reports
// how many were dropped.
func (e *Engine) PruneApprovals(ctx context.Context, olderThanDays int) (int, error) {
	return e.approvals.Prune(olderThanDays)
}

// PruneFeedback removes feedback records older than the window and reports
// how many were dropped.
func (e *Engine) PruneFeedback(ctx context.Context, olderThanDays int) (int, error) {
	return e.tracker.Prune(olderThanDays)
}

// DiffLatestBackup returns a unified diff between the newest settings
// backup and the live settings document.
func (e *Engine) DiffLatestBackup() (string, int, int, error) {
	return e.rules.DiffLatestBackup()
}
