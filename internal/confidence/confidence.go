// Package confidence scores pattern evidence. A score is a sum of capped
// sub-signals, each reflecting a distinct kind of evidence, clamped to
// [0, 1]. The model rewards breadth (sessions, scopes, recency) rather than
// raw volume: a pattern seen five times across five sessions outscores one
// seen fifty times in a single session.
package confidence

import (
	"sort"
	"time"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
)

// Weights defines the contribution of each sub-signal.
type Weights struct {
	// Base is granted for any non-empty evidence at all.
	Base float64 `json:"base"`

	// SessionCap is the maximum session-diversity contribution, reached
	// at SessionNorm distinct sessions.
	SessionCap  float64 `json:"session_cap"`
	SessionNorm int     `json:"session_norm"`

	// Scope spread pays one of three flat amounts depending on how many
	// distinct scopes the evidence covers: three or more, exactly two,
	// or a single scope.
	ScopeFull    float64 `json:"scope_full"`
	ScopePartial float64 `json:"scope_partial"`
	ScopeMinimal float64 `json:"scope_minimal"`

	// ConsistencyCap scales with the share of matching events that carry
	// the modal rule text.
	ConsistencyCap float64 `json:"consistency_cap"`

	// RecencyBonus is granted when the evidence includes one of the
	// RecencyWindow most recent events in the window.
	RecencyBonus  float64 `json:"recency_bonus"`
	RecencyWindow int     `json:"recency_window"`
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Base:           0.40,
		SessionCap:     0.25,
		SessionNorm:    5,
		ScopeFull:      0.15,
		ScopePartial:   0.10,
		ScopeMinimal:   0.03,
		ConsistencyCap: 0.05,
		RecencyBonus:   0.05,
		RecencyWindow:  20,
	}
}

// CrossScopeWeights returns the weights used for cross-scope candidates.
// The lower base leaves headroom for the generalization boost applied on
// top of the score.
func CrossScopeWeights() Weights {
	w := DefaultWeights()
	w.Base = 0.35
	return w
}

// Score rates the evidence for one pattern. matching holds the events the
// pattern matched; population holds every event in the same query window and
// feeds only the recency cutoff. The result is clamped to [0, 1].
func Score(matching, population []approval.Event, w Weights) float64 {
	if len(matching) == 0 {
		return 0
	}

	score := w.Base
	score += sessionSignal(matching, w)
	score += scopeSignal(matching, w)
	score += consistencySignal(matching, w)
	score += recencySignal(matching, population, w)

	return clamp(score)
}

func sessionSignal(matching []approval.Event, w Weights) float64 {
	if w.SessionNorm <= 0 || w.SessionCap == 0 {
		return 0
	}
	sessions := make(map[string]struct{}, len(matching))
	for _, ev := range matching {
		sessions[ev.SessionID] = struct{}{}
	}
	n := len(sessions)
	if n > w.SessionNorm {
		n = w.SessionNorm
	}
	return float64(n) / float64(w.SessionNorm) * w.SessionCap
}

func scopeSignal(matching []approval.Event, w Weights) float64 {
	scopes := make(map[string]struct{}, len(matching))
	for _, ev := range matching {
		scopes[ev.ScopeID] = struct{}{}
	}
	switch {
	case len(scopes) >= 3:
		return w.ScopeFull
	case len(scopes) == 2:
		return w.ScopePartial
	default:
		return w.ScopeMinimal
	}
}

// consistencySignal scales with how uniform the matched rule text is: the
// share of matching events that carry the modal text. Unrelated activity in
// the window never dilutes it.
func consistencySignal(matching []approval.Event, w Weights) float64 {
	counts := make(map[string]int, len(matching))
	top := 0
	for _, ev := range matching {
		counts[ev.RuleText]++
		if counts[ev.RuleText] > top {
			top = counts[ev.RuleText]
		}
	}
	return float64(top) / float64(len(matching)) * w.ConsistencyCap
}

// recencySignal pays the bonus when any matching event sits among the
// RecencyWindow newest population events. Ordering of the inputs does not
// matter; the cutoff is computed from timestamps.
func recencySignal(matching, population []approval.Event, w Weights) float64 {
	if w.RecencyWindow <= 0 || len(population) == 0 {
		return 0
	}

	ts := make([]time.Time, len(population))
	for i, ev := range population {
		ts[i] = ev.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].After(ts[j]) })

	idx := w.RecencyWindow - 1
	if idx >= len(ts) {
		idx = len(ts) - 1
	}
	cutoff := ts[idx]

	for _, ev := range matching {
		if !ev.Timestamp.Before(cutoff) {
			return w.RecencyBonus
		}
	}
	return 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
