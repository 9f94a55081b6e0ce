// Package detect turns approval history into rule suggestions. The detector
// matches events against the static category catalog tier by tier; the
// generalizer looks for command tokens recurring across scopes. Both emit
// Suggestions with deterministic fingerprints, so a rejected suggestion
// stays rejected and re-running a cycle never produces duplicates.
package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/catalog"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/confidence"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/permission"
)

// MaxExamples bounds how many example events a pattern carries.
const MaxExamples = 5

// EventSource supplies approval events for a trailing window.
type EventSource interface {
	Query(windowDays int, scope string) ([]approval.Event, error)
}

// Pattern is evidence that one category recurs in the approval history.
// Patterns are derived fresh per run and never persisted.
type Pattern struct {
	CategoryID  string           `json:"category_id"`
	Tier        catalog.Tier     `json:"tier"`
	Occurrences int              `json:"occurrences"`
	Confidence  float64          `json:"confidence"`
	Examples    []approval.Event `json:"examples"`
	WindowDays  int              `json:"window_days"`
	DetectedAt  time.Time        `json:"detected_at"`
}

// Suggestion is an actionable proposal derived from a pattern. ID is a
// deterministic fingerprint of what is being proposed, not of the run.
type Suggestion struct {
	ID             string       `json:"id"`
	Component      string       `json:"component"`
	Tier           catalog.Tier `json:"tier"`
	Description    string       `json:"description"`
	ProposedRules  []string     `json:"proposed_rules"`
	WouldAllow     []string     `json:"would_allow"`
	WouldStillAsk  []string     `json:"would_still_ask,omitempty"`
	ImpactEstimate string       `json:"impact_estimate"`
	Confidence     float64      `json:"confidence"`
	Source         Pattern      `json:"source"`
}

// CategoryFingerprint is the suggestion ID for a catalog pattern.
func CategoryFingerprint(categoryID string) string {
	return "category:" + categoryID
}

// TokenFingerprint is the suggestion ID for a cross-scope generalization.
func TokenFingerprint(token string) string {
	return "cross_scope:" + token
}

// Detector mines the catalog tiers. The cross-scope tier is handled by
// Generalizer, not here.
type Detector struct {
	events      EventSource
	catalog     *catalog.Catalog
	weights     confidence.Weights
	maxExamples int
}

// DetectorOptions tunes optional detector behavior. Zero values keep the
// defaults.
type DetectorOptions struct {
	MaxExamples int
}

// NewDetector creates a detector over the given event source and catalog.
func NewDetector(events EventSource, cat *catalog.Catalog, w confidence.Weights) *Detector {
	return NewDetectorWithOptions(events, cat, w, DetectorOptions{})
}

// NewDetectorWithOptions creates a detector with non-default options.
func NewDetectorWithOptions(events EventSource, cat *catalog.Catalog, w confidence.Weights, opts DetectorOptions) *Detector {
	maxExamples := opts.MaxExamples
	if maxExamples <= 0 {
		maxExamples = MaxExamples
	}
	return &Detector{events: events, catalog: cat, weights: w, maxExamples: maxExamples}
}

// Run executes one detection pass. params supplies the current per-tier
// thresholds; rejected suppresses fingerprints the user has already turned
// down. Results are sorted by confidence descending, ties by ID.
func (d *Detector) Run(params map[catalog.Tier]catalog.TierParams, rejected map[string]bool) ([]Suggestion, error) {
	defaults := catalog.DefaultParams()
	windows := make(map[int][]approval.Event)

	var suggestions []Suggestion
	for _, tier := range []catalog.Tier{catalog.TierSafe, catalog.TierModerate, catalog.TierRisky} {
		p, ok := params[tier]
		if !ok {
			p = defaults[tier]
		}

		events, ok := windows[p.WindowDays]
		if !ok {
			var err error
			events, err = d.events.Query(p.WindowDays, "")
			if err != nil {
				return nil, fmt.Errorf("failed to load events for %s: %w", tier, err)
			}
			windows[p.WindowDays] = events
		}

		for _, cat := range d.catalog.ForTier(tier) {
			matching := matchEvents(events, cat)
			if len(matching) < p.MinOccurrences {
				continue
			}

			score := confidence.Score(matching, events, d.weights)
			if score < p.ConfidenceThreshold {
				logging.Debug().Str("category", cat.ID).Float64("confidence", score).
					Float64("threshold", p.ConfidenceThreshold).Msg("pattern below confidence threshold")
				continue
			}

			fp := CategoryFingerprint(cat.ID)
			if rejected[fp] {
				logging.Debug().Str("suggestion", fp).Msg("suppressing rejected suggestion")
				continue
			}

			pattern := Pattern{
				CategoryID:  cat.ID,
				Tier:        tier,
				Occurrences: len(matching),
				Confidence:  score,
				Examples:    diverseExamples(matching, d.maxExamples),
				WindowDays:  p.WindowDays,
				DetectedAt:  time.Now().UTC(),
			}

			sug, ok := buildSuggestion(cat, pattern, fp)
			if !ok {
				continue
			}
			suggestions = append(suggestions, sug)
		}
	}

	SortSuggestions(suggestions)
	return suggestions, nil
}

func matchEvents(events []approval.Event, cat catalog.Category) []approval.Event {
	var matching []approval.Event
	for _, ev := range events {
		if cat.Matches(ev.RuleText) {
			matching = append(matching, ev)
		}
	}
	return matching
}

// buildSuggestion converts a pattern into a proposal. Templates that fail
// rule validation are dropped with the reason logged; a category whose
// templates all fail produces nothing.
func buildSuggestion(cat catalog.Category, pattern Pattern, fp string) (Suggestion, bool) {
	proposed, invalid := permission.ValidateRules(cat.RuleTemplates)
	for rule, reason := range invalid {
		logging.Warn().Str("category", cat.ID).Str("template", rule).Str("reason", reason).
			Msg("dropping invalid rule template")
	}
	if len(proposed) == 0 {
		return Suggestion{}, false
	}

	wouldAllow, wouldStillAsk := splitCoverage(pattern.Examples, proposed)
	return Suggestion{
		ID:             fp,
		Component:      pattern.Tier.Component(),
		Tier:           pattern.Tier,
		Description:    fmt.Sprintf("%s (%d approvals in %d days)", cat.Description, pattern.Occurrences, pattern.WindowDays),
		ProposedRules:  proposed,
		WouldAllow:     wouldAllow,
		WouldStillAsk:  wouldStillAsk,
		ImpactEstimate: impactEstimate(pattern),
		Confidence:     pattern.Confidence,
		Source:         pattern,
	}, true
}

// splitCoverage partitions the example rule texts into those the proposed
// rules would allow and those that would still prompt.
func splitCoverage(examples []approval.Event, proposed []string) (allow, ask []string) {
	seen := make(map[string]bool, len(examples))
	for _, ev := range examples {
		if seen[ev.RuleText] {
			continue
		}
		seen[ev.RuleText] = true
		if permission.CoveredBy(ev.RuleText, proposed) != "" {
			allow = append(allow, ev.RuleText)
		} else {
			ask = append(ask, ev.RuleText)
		}
	}
	sort.Strings(allow)
	sort.Strings(ask)
	return allow, ask
}

func impactEstimate(pattern Pattern) string {
	per := float64(pattern.Occurrences) / float64(pattern.WindowDays)
	switch {
	case per >= 1:
		return fmt.Sprintf("~%.0f prompts avoided per day", per)
	case pattern.WindowDays >= 7 && per*7 >= 1:
		return fmt.Sprintf("~%.0f prompts avoided per week", per*7)
	default:
		return fmt.Sprintf("%d prompts avoided over %d days", pattern.Occurrences, pattern.WindowDays)
	}
}

// diverseExamples picks up to max events spreading over distinct rule
// texts: starting from the newest, each pick maximizes the edit distance to
// the ones already chosen. Five near-identical examples tell the user less
// than five different ones.
func diverseExamples(events []approval.Event, max int) []approval.Event {
	if len(events) <= max {
		return append([]approval.Event(nil), events...)
	}

	sorted := append([]approval.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	chosen := sorted[:1:1]
	remaining := sorted[1:]
	for len(chosen) < max && len(remaining) > 0 {
		bestIdx, bestDist := 0, -1
		for i, cand := range remaining {
			minDist := -1
			for _, ch := range chosen {
				d := levenshtein.ComputeDistance(cand.RuleText, ch.RuleText)
				if minDist < 0 || d < minDist {
					minDist = d
				}
			}
			if minDist > bestDist {
				bestIdx, bestDist = i, minDist
			}
		}
		chosen = append(chosen, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return chosen
}

// SortSuggestions orders suggestions by confidence descending, ties broken
// by ID for stable output.
func SortSuggestions(suggestions []Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].ID < suggestions[j].ID
	})
}
