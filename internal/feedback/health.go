package feedback

// Health score blend and rating cutoffs. Acceptance dominates; the revert
// rate tempers it.
const (
	healthAcceptWeight = 0.7
	healthRevertWeight = 0.3

	ratingExcellent = 0.85
	ratingGood      = 0.70
	ratingFair      = 0.50
)

// Rating is a coarse label for a component's health score.
type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "poor"
	RatingUnknown   Rating = "unknown"
)

// ComponentHealth is the reporting view of one component's feedback. It
// never feeds back into thresholds; Recalibrate has its own policy.
type ComponentHealth struct {
	Component         string  `json:"component"`
	Decisions         int     `json:"decisions"`
	AcceptanceRate    float64 `json:"acceptance_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	Score             float64 `json:"score"`
	Rating            Rating  `json:"rating"`
}

// Health rates one component over the trailing window. A component with no
// decisions yet is "unknown" rather than scored.
func (t *Tracker) Health(component string, days int) (*ComponentHealth, error) {
	stats, err := t.ComponentStats(component, days)
	if err != nil {
		return nil, err
	}

	health := &ComponentHealth{
		Component:         component,
		Decisions:         stats.Decisions,
		AcceptanceRate:    stats.AcceptanceRate,
		FalsePositiveRate: stats.FalsePositiveRate,
	}
	if stats.Decisions == 0 {
		health.Rating = RatingUnknown
		return health, nil
	}

	health.Score = healthAcceptWeight*stats.AcceptanceRate +
		healthRevertWeight*(1-stats.FalsePositiveRate)
	switch {
	case health.Score >= ratingExcellent:
		health.Rating = RatingExcellent
	case health.Score >= ratingGood:
		health.Rating = RatingGood
	case health.Score >= ratingFair:
		health.Rating = RatingFair
	default:
		health.Rating = RatingPoor
	}
	return health, nil
}
