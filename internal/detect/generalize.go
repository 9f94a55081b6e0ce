package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/catalog"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/confidence"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/permission"
)

// DefaultBoost is added to a cross-scope score on top of the confidence
// model: evidence spread over scopes carries extra weight per se.
const DefaultBoost = 0.15

// DefaultMinScopes is how many distinct scopes a token must appear in
// before a wildcard is considered.
const DefaultMinScopes = 2

// Generalizer finds command tokens recurring across scopes and proposes a
// token wildcard for them. A tool approved in several projects is habit,
// not coincidence.
type Generalizer struct {
	events      EventSource
	weights     confidence.Weights
	boost       float64
	minScopes   int
	maxExamples int
}

// GeneralizerOptions tunes optional generalizer behavior. Zero values keep
// the defaults.
type GeneralizerOptions struct {
	Weights     *confidence.Weights
	Boost       float64
	MinScopes   int
	MaxExamples int
}

// NewGeneralizer creates a generalizer with the cross-scope weights.
func NewGeneralizer(events EventSource) *Generalizer {
	return NewGeneralizerWithOptions(events, GeneralizerOptions{})
}

// NewGeneralizerWithOptions creates a generalizer with non-default options.
func NewGeneralizerWithOptions(events EventSource, opts GeneralizerOptions) *Generalizer {
	g := &Generalizer{
		events:      events,
		weights:     confidence.CrossScopeWeights(),
		boost:       DefaultBoost,
		minScopes:   DefaultMinScopes,
		maxExamples: MaxExamples,
	}
	if opts.Weights != nil {
		g.weights = *opts.Weights
	}
	if opts.Boost > 0 {
		g.boost = opts.Boost
	}
	if opts.MinScopes > DefaultMinScopes {
		g.minScopes = opts.MinScopes
	}
	if opts.MaxExamples > 0 {
		g.maxExamples = opts.MaxExamples
	}
	return g
}

// Run executes one generalization pass under the CROSS_SCOPE parameters.
func (g *Generalizer) Run(p catalog.TierParams, rejected map[string]bool) ([]Suggestion, error) {
	events, err := g.events.Query(p.WindowDays, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", catalog.TierCrossScope, err)
	}

	groups := groupByToken(events)

	var suggestions []Suggestion
	for token, group := range groups {
		scopes := make(map[string]struct{})
		for _, ev := range group {
			scopes[ev.ScopeID] = struct{}{}
		}
		if len(scopes) < g.minScopes {
			continue
		}
		if len(group) < p.MinOccurrences {
			continue
		}

		score := confidence.Score(group, events, g.weights) + g.boost
		if score > 1 {
			score = 1
		}
		if score < p.ConfidenceThreshold {
			logging.Debug().Str("token", token).Float64("confidence", score).
				Float64("threshold", p.ConfidenceThreshold).Msg("token below confidence threshold")
			continue
		}

		fp := TokenFingerprint(token)
		if rejected[fp] {
			logging.Debug().Str("suggestion", fp).Msg("suppressing rejected suggestion")
			continue
		}

		rule := permission.WildcardFor(token)
		if err := permission.ValidateRule(rule); err != nil {
			logging.Warn().Str("token", token).Str("reason", permission.InvalidReason(err)).
				Msg("dropping invalid generalization")
			continue
		}

		pattern := Pattern{
			CategoryID:  token,
			Tier:        catalog.TierCrossScope,
			Occurrences: len(group),
			Confidence:  score,
			Examples:    diverseExamples(group, g.maxExamples),
			WindowDays:  p.WindowDays,
			DetectedAt:  time.Now().UTC(),
		}
		wouldAllow := distinctRuleTexts(group)

		suggestions = append(suggestions, Suggestion{
			ID:            fp,
			Component:     catalog.ComponentCrossScope,
			Tier:          catalog.TierCrossScope,
			Description:   fmt.Sprintf("'%s' commands approved in %d scopes (%d approvals in %d days)", token, len(scopes), len(group), p.WindowDays),
			ProposedRules: []string{rule},
			WouldAllow:    wouldAllow,
			ImpactEstimate: fmt.Sprintf("one wildcard replaces %d distinct rules across %d scopes",
				len(wouldAllow), len(scopes)),
			Confidence: score,
			Source:     pattern,
		})
	}

	SortSuggestions(suggestions)
	return suggestions, nil
}

// groupByToken buckets command approvals by their leading token. Events
// that are not command rules, or whose command is not a stable token (shell
// wrappers, keywords, dynamic names), are left out.
func groupByToken(events []approval.Event) map[string][]approval.Event {
	groups := make(map[string][]approval.Event)
	for _, ev := range events {
		tool, arg, ok := permission.ParseRule(ev.RuleText)
		if !ok || tool != "Bash" {
			continue
		}
		token, ok := permission.LeadingToken(arg)
		if !ok {
			continue
		}
		groups[token] = append(groups[token], ev)
	}
	return groups
}

func distinctRuleTexts(events []approval.Event) []string {
	seen := make(map[string]bool, len(events))
	var texts []string
	for _, ev := range events {
		if seen[ev.RuleText] {
			continue
		}
		seen[ev.RuleText] = true
		texts = append(texts, ev.RuleText)
	}
	sort.Strings(texts)
	return texts
}
