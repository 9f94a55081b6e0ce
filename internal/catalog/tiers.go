package catalog

// Tier classifies pattern categories by the risk of auto-allowing them.
type Tier string

const (
	TierSafe       Tier = "SAFE"
	TierModerate   Tier = "MODERATE"
	TierRisky      Tier = "RISKY"
	TierCrossScope Tier = "CROSS_SCOPE"
)

// Tiers returns all tiers in detection order.
func Tiers() []Tier {
	return []Tier{TierSafe, TierModerate, TierRisky, TierCrossScope}
}

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierSafe, TierModerate, TierRisky, TierCrossScope:
		return Tier(s), true
	}
	return "", false
}

// Detection components. Each tier is owned by exactly one component, and
// feedback is attributed to the component that produced the suggestion.
const (
	ComponentPatternDetector = "pattern_detector"
	ComponentCrossScope      = "cross_scope"
)

// Components returns all detection components.
func Components() []string {
	return []string{ComponentPatternDetector, ComponentCrossScope}
}

// ComponentTiers returns the tiers a component owns.
func ComponentTiers(component string) []Tier {
	switch component {
	case ComponentPatternDetector:
		return []Tier{TierSafe, TierModerate, TierRisky}
	case ComponentCrossScope:
		return []Tier{TierCrossScope}
	}
	return nil
}

// Component returns the component that owns this tier.
func (t Tier) Component() string {
	if t == TierCrossScope {
		return ComponentCrossScope
	}
	return ComponentPatternDetector
}

// TierParams are the detection parameters of one tier. They are the only
// state the meta-learner mutates.
type TierParams struct {
	MinOccurrences      int     `json:"min_occurrences"`
	WindowDays          int     `json:"window_days"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// TierBounds limit how far recalibration may move a tier's parameters.
// The bounds themselves never change at runtime.
type TierBounds struct {
	OccMin  int
	OccMax  int
	ConfMin float64
	ConfMax float64
}

// ClampOccurrences forces an occurrence count into the bounds.
func (b TierBounds) ClampOccurrences(n int) int {
	if n < b.OccMin {
		return b.OccMin
	}
	if n > b.OccMax {
		return b.OccMax
	}
	return n
}

// ClampConfidence forces a confidence threshold into the bounds.
func (b TierBounds) ClampConfidence(c float64) float64 {
	if c < b.ConfMin {
		return b.ConfMin
	}
	if c > b.ConfMax {
		return b.ConfMax
	}
	return c
}

// Contains reports whether the given params sit inside the bounds.
func (b TierBounds) Contains(p TierParams) bool {
	return p.MinOccurrences >= b.OccMin && p.MinOccurrences <= b.OccMax &&
		p.ConfidenceThreshold >= b.ConfMin && p.ConfidenceThreshold <= b.ConfMax
}

var defaultParams = map[Tier]TierParams{
	TierSafe:       {MinOccurrences: 2, WindowDays: 14, ConfidenceThreshold: 0.30},
	TierModerate:   {MinOccurrences: 3, WindowDays: 14, ConfidenceThreshold: 0.50},
	TierRisky:      {MinOccurrences: 5, WindowDays: 30, ConfidenceThreshold: 0.70},
	TierCrossScope: {MinOccurrences: 3, WindowDays: 30, ConfidenceThreshold: 0.60},
}

var tierBounds = map[Tier]TierBounds{
	TierSafe:       {OccMin: 2, OccMax: 5, ConfMin: 0.30, ConfMax: 0.60},
	TierModerate:   {OccMin: 3, OccMax: 6, ConfMin: 0.40, ConfMax: 0.75},
	TierRisky:      {OccMin: 4, OccMax: 8, ConfMin: 0.60, ConfMax: 0.90},
	TierCrossScope: {OccMin: 3, OccMax: 6, ConfMin: 0.50, ConfMax: 0.85},
}

// DefaultParams returns a fresh copy of the built-in tier parameters.
func DefaultParams() map[Tier]TierParams {
	params := make(map[Tier]TierParams, len(defaultParams))
	for tier, p := range defaultParams {
		params[tier] = p
	}
	return params
}

// BoundsFor returns the immutable recalibration bounds of a tier.
func BoundsFor(tier Tier) TierBounds {
	return tierBounds[tier]
}
